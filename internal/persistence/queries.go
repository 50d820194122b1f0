package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angora-org/angora/internal/stringutil"
)

// MessageRow is one archived broker message.
type MessageRow struct {
	ID        int64  `json:"id"`
	Exchange  string `json:"exchange"`
	Queue     string `json:"queue"`
	Message   string `json:"message"`
	Data      string `json:"data"`
	TimeStamp string `json:"time_stamp"`
}

// TaskRow is one task status transition.
type TaskRow struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Trigger    string `json:"trigger"`
	Command    string `json:"command"`
	Parameters string `json:"parameters"`
	Log        string `json:"log"`
	Status     string `json:"status"`
	TimeStamp  string `json:"time_stamp"`
}

// TaskFilter selects task rows; zero-valued fields are not applied.
// RunDate is a timestamp prefix (a date, or a date plus leading time
// digits). StartDateTime and EndDateTime are inclusive bounds.
type TaskFilter struct {
	RunDate       string
	Name          string
	Trigger       string
	Command       string
	Parameters    string
	Log           string
	Status        string
	StartDateTime string
	EndDateTime   string
}

// InsertMessage archives one consumed message. A nil data payload is
// stored as SQL NULL; anything else is stored as its JSON encoding.
func (s *Store) InsertMessage(ctx context.Context, exchange, queue, message string, data any, timeStamp string) error {
	if timeStamp == "" {
		timeStamp = stringutil.FormatTime(time.Now())
	}

	var dataVal any
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode message data: %w", err)
		}
		dataVal = string(encoded)
	}

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO messages (exchange, queue, message, data, time_stamp) VALUES (?, ?, ?, ?, ?)`),
		exchange, queue, message, dataVal, timeStamp)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// InsertTask records one status transition. An empty timestamp is
// stamped with the current wall clock.
func (s *Store) InsertTask(ctx context.Context, row TaskRow) error {
	if row.TimeStamp == "" {
		row.TimeStamp = stringutil.FormatTime(time.Now())
	}

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO tasks (name, "trigger", command, parameters, log, status, time_stamp) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		row.Name, row.Trigger, row.Command, row.Parameters, row.Log, row.Status, row.TimeStamp)
	if err != nil {
		return fmt.Errorf("failed to insert task record: %w", err)
	}
	return nil
}

// GetMessagesToday returns the messages archived since the start of the
// current day, oldest first.
func (s *Store) GetMessagesToday(ctx context.Context) ([]MessageRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, exchange, queue, message, data, time_stamp
		 FROM messages WHERE time_stamp >= ? ORDER BY time_stamp`),
		startOfToday())
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []MessageRow
	for rows.Next() {
		var m MessageRow
		var data sql.NullString
		if err := rows.Scan(&m.ID, &m.Exchange, &m.Queue, &m.Message, &data, &m.TimeStamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Data = data.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetTasks returns the task transitions matching the filter, ordered by
// timestamp ascending.
func (s *Store) GetTasks(ctx context.Context, filter TaskFilter) ([]TaskRow, error) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if filter.RunDate != "" {
		add("time_stamp LIKE ?", filter.RunDate+"%")
	}
	if filter.Name != "" {
		add("name = ?", filter.Name)
	}
	if filter.Trigger != "" {
		add(`"trigger" = ?`, filter.Trigger)
	}
	if filter.Command != "" {
		add("command = ?", filter.Command)
	}
	if filter.Parameters != "" {
		add("parameters = ?", filter.Parameters)
	}
	if filter.Log != "" {
		add("log = ?", filter.Log)
	}
	if filter.Status != "" {
		add("status = ?", filter.Status)
	}
	if filter.StartDateTime != "" {
		add("time_stamp >= ?", filter.StartDateTime)
	}
	if filter.EndDateTime != "" {
		add("time_stamp <= ?", filter.EndDateTime)
	}

	query := `SELECT id, name, "trigger", command, parameters, log, status, time_stamp FROM tasks`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY time_stamp"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return scanTaskRows(rows)
}

// GetTasksToday returns today's transitions, optionally restricted to
// one status.
func (s *Store) GetTasksToday(ctx context.Context, status string) ([]TaskRow, error) {
	return s.GetTasks(ctx, TaskFilter{Status: status, StartDateTime: startOfToday()})
}

// GetTasksLatest returns, for each task name seen today, its most recent
// transition. A non-empty name restricts the result to that task.
func (s *Store) GetTasksLatest(ctx context.Context, name string) ([]TaskRow, error) {
	query := `
		WITH latest AS (
			SELECT name, MAX(time_stamp) AS time_stamp
			FROM tasks WHERE time_stamp >= ?`
	args := []any{startOfToday()}
	if name != "" {
		query += " AND name = ?"
		args = append(args, name)
	}
	query += `
			GROUP BY name
		)
		SELECT t.id, t.name, t."trigger", t.command, t.parameters, t.log, t.status, t.time_stamp
		FROM tasks t
		JOIN latest l ON t.name = l.name AND t.time_stamp = l.time_stamp
		ORDER BY t.time_stamp`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest tasks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return scanTaskRows(rows)
}

// startOfToday is midnight of the current civil day in TimestampFormat,
// the lower bound for all "today" queries.
func startOfToday() string {
	return stringutil.FormatTime(stringutil.StartOfDay(time.Now()))
}

func scanTaskRows(rows *sql.Rows) ([]TaskRow, error) {
	var out []TaskRow
	for rows.Next() {
		var t TaskRow
		if err := rows.Scan(&t.ID, &t.Name, &t.Trigger, &t.Command, &t.Parameters,
			&t.Log, &t.Status, &t.TimeStamp); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
