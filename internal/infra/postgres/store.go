package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizroom/internal/domain"
)

// Store implements app.Store and app.QuestionSource on Postgres.
// Answer recording and game reset each run in a single transaction so
// a crash leaves the prior or the new state, never half of either; the
// unique (player_id, question_id) constraint is the at-most-once
// backstop beneath the engine's duplicate check.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const roomColumns = `id, code, name, status, current_question_index, started_at, created_at, updated_at`

func scanRoom(row pgx.Row) (domain.Room, error) {
	var room domain.Room
	err := row.Scan(&room.ID, &room.Code, &room.Name, &room.Status,
		&room.CurrentQuestionIndex, &room.StartedAt, &room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("scan room: %w", err)
	}
	return room, nil
}

func (s *Store) RoomByID(ctx context.Context, roomID string) (domain.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1`, roomID))
}

func (s *Store) RoomByCode(ctx context.Context, code string) (domain.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE code = $1`, code))
}

func (s *Store) UpdateRoom(ctx context.Context, roomID string, upd domain.RoomUpdate) (domain.Room, error) {
	set := []string{"updated_at = now()"}
	args := []interface{}{}
	n := 1
	if upd.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", n))
		args = append(args, *upd.Status)
		n++
	}
	if upd.CurrentQuestionIndex != nil {
		set = append(set, fmt.Sprintf("current_question_index = $%d", n))
		args = append(args, *upd.CurrentQuestionIndex)
		n++
	}
	if upd.StartedAt != nil {
		set = append(set, fmt.Sprintf("started_at = $%d", n))
		args = append(args, *upd.StartedAt)
		n++
	}
	if upd.ClearStartedAt {
		set = append(set, "started_at = NULL")
	}
	args = append(args, roomID)

	query := fmt.Sprintf(`UPDATE rooms SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(set, ", "), n, roomColumns)
	return scanRoom(s.pool.QueryRow(ctx, query, args...))
}

func (s *Store) QuestionsForRoom(ctx context.Context, roomID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, room_id, text, type, time_limit_seconds, point_value, ordinal
		FROM questions WHERE room_id = $1 ORDER BY ordinal`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := make([]domain.Question, 0)
	index := make(map[string]int)
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.RoomID, &q.Text, &q.Type,
			&q.TimeLimitSeconds, &q.PointValue, &q.Ordinal); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return questions, nil
	}

	optRows, err := s.pool.Query(ctx, `
		SELECT o.id, o.question_id, o.text, o.is_correct
		FROM answer_options o
		JOIN questions q ON q.id = o.question_id
		WHERE q.room_id = $1 ORDER BY o.id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var opt domain.AnswerOption
		if err := optRows.Scan(&opt.ID, &opt.QuestionID, &opt.Text, &opt.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if i, ok := index[opt.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, opt)
		}
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	return questions, nil
}

func (s *Store) PlayerByID(ctx context.Context, playerID string) (domain.Player, error) {
	var p domain.Player
	err := s.pool.QueryRow(ctx, `
		SELECT id, room_id, display_name, club_id, score, updated_at
		FROM players WHERE id = $1`, playerID).
		Scan(&p.ID, &p.RoomID, &p.DisplayName, &p.ClubID, &p.Score, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

func (s *Store) HasPlayerAnswer(ctx context.Context, playerID, questionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM player_answers WHERE player_id = $1 AND question_id = $2)`,
		playerID, questionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check answer: %w", err)
	}
	return exists, nil
}

func (s *Store) RecordAnswer(ctx context.Context, ans domain.PlayerAnswer) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO player_answers (id, player_id, question_id, answer_id, room_id, score, answered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (player_id, question_id) DO NOTHING`,
		ans.ID, ans.PlayerID, ans.QuestionID, ans.AnswerID, ans.RoomID, ans.Score, ans.AnsweredAt)
	if err != nil {
		return 0, fmt.Errorf("insert answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, domain.ErrAlreadyAnswered
	}

	var newTotal int
	err = tx.QueryRow(ctx, `
		UPDATE players SET score = score + $1, updated_at = now()
		WHERE id = $2 RETURNING score`, ans.Score, ans.PlayerID).Scan(&newTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrPlayerNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment score: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newTotal, nil
}

func (s *Store) ResetGame(ctx context.Context, roomID string) (domain.Room, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Room{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM player_answers WHERE room_id = $1`, roomID); err != nil {
		return domain.Room{}, fmt.Errorf("delete answers: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE players SET score = 0, updated_at = now() WHERE room_id = $1`, roomID); err != nil {
		return domain.Room{}, fmt.Errorf("reset scores: %w", err)
	}

	room, err := scanRoom(tx.QueryRow(ctx, `
		UPDATE rooms SET status = 'WAITING', current_question_index = 0,
			started_at = NULL, updated_at = now()
		WHERE id = $1 RETURNING `+roomColumns, roomID))
	if err != nil {
		return domain.Room{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Room{}, fmt.Errorf("commit: %w", err)
	}
	return room, nil
}

func (s *Store) PlayersByScoreDesc(ctx context.Context, roomID string, limit int) ([]domain.Player, error) {
	query := `
		SELECT id, room_id, display_name, club_id, score, updated_at
		FROM players WHERE room_id = $1
		ORDER BY score DESC, updated_at ASC, id ASC`
	args := []interface{}{roomID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	players := make([]domain.Player, 0)
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.RoomID, &p.DisplayName, &p.ClubID, &p.Score, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return players, nil
}
