package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veblen3358/secure-reveal-lab/oracle"
	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore connects, pings and migrates the schema.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS surveys (
		id BIGINT PRIMARY KEY,
		title TEXT NOT NULL,
		questions TEXT[] NOT NULL,
		creator TEXT NOT NULL,
		start_time TIMESTAMP WITH TIME ZONE NOT NULL,
		end_time TIMESTAMP WITH TIME ZONE NOT NULL,
		paused BOOLEAN NOT NULL DEFAULT FALSE,
		response_count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS responses (
		seq BIGSERIAL PRIMARY KEY,
		survey_id BIGINT NOT NULL,
		respondent TEXT NOT NULL,
		answers TEXT[] NOT NULL,
		submitted_at TIMESTAMP WITH TIME ZONE NOT NULL,
		UNIQUE (survey_id, respondent)
	);

	CREATE TABLE IF NOT EXISTS reveals (
		survey_id BIGINT NOT NULL,
		respondent TEXT NOT NULL,
		answers BIGINT[] NOT NULL,
		revealed_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (survey_id, respondent)
	);

	CREATE INDEX IF NOT EXISTS idx_responses_survey ON responses(survey_id);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveSurvey upserts a survey record.
func (s *PostgresStore) SaveSurvey(survey *Survey) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.saveSurvey(ctx, s.db, survey)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) saveSurvey(ctx context.Context, db execer, survey *Survey) error {
	query := `
	INSERT INTO surveys (id, title, questions, creator, start_time, end_time, paused, response_count, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	ON CONFLICT (id) DO UPDATE SET
		end_time = EXCLUDED.end_time,
		paused = EXCLUDED.paused,
		response_count = EXCLUDED.response_count,
		updated_at = NOW()
	`

	_, err := db.ExecContext(ctx, query,
		int64(survey.ID),
		survey.Title,
		pq.Array(survey.Questions),
		string(survey.Creator),
		survey.StartTime,
		survey.EndTime,
		survey.Paused,
		survey.ResponseCount,
	)
	return err
}

// SaveSurveys upserts a batch of surveys in one transaction, so a batch
// creation either fully persists or not at all.
func (s *PostgresStore) SaveSurveys(surveys []*Survey) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, survey := range surveys {
		if err := s.saveSurvey(ctx, tx, survey); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveResponse inserts a response. The UNIQUE constraint backs up the
// ledger's exactly-once check.
func (s *PostgresStore) SaveResponse(resp *Response) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	answers := make([]string, len(resp.Answers))
	for i, h := range resp.Answers {
		answers[i] = string(h)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO responses (survey_id, respondent, answers, submitted_at)
		VALUES ($1, $2, $3, $4)
	`, int64(resp.SurveyID), string(resp.Respondent), pq.Array(answers), resp.SubmittedAt)
	return err
}

// SaveReveal inserts a one-time reveal. The primary key rejects a second
// reveal for the same pair at the storage layer as well.
func (s *PostgresStore) SaveReveal(rev *RevealedResponse) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reveals (survey_id, respondent, answers)
		VALUES ($1, $2, $3)
	`, int64(rev.SurveyID), string(rev.Respondent), pq.Array(rev.Answers))
	return err
}

// Load reads the full persisted snapshot.
func (s *PostgresStore) Load() (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap := &Snapshot{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, questions, creator, start_time, end_time, paused, response_count
		FROM surveys ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id            int64
			title         string
			questions     []string
			creator       string
			startTime     time.Time
			endTime       time.Time
			paused        bool
			responseCount int
		)
		if err := rows.Scan(&id, &title, pq.Array(&questions), &creator, &startTime, &endTime, &paused, &responseCount); err != nil {
			return nil, fmt.Errorf("scanning survey row: %w", err)
		}
		snap.Surveys = append(snap.Surveys, &Survey{
			ID:            SurveyID(id),
			Title:         title,
			Questions:     questions,
			Creator:       Principal(creator),
			StartTime:     startTime,
			EndTime:       endTime,
			Paused:        paused,
			ResponseCount: responseCount,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	respRows, err := s.db.QueryContext(ctx, `
		SELECT survey_id, respondent, answers, submitted_at
		FROM responses ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer respRows.Close()

	for respRows.Next() {
		var (
			surveyID    int64
			respondent  string
			answers     []string
			submittedAt time.Time
		)
		if err := respRows.Scan(&surveyID, &respondent, pq.Array(&answers), &submittedAt); err != nil {
			return nil, fmt.Errorf("scanning response row: %w", err)
		}
		handles := make([]oracle.Handle, len(answers))
		for i, a := range answers {
			handles[i] = oracle.Handle(a)
		}
		snap.Responses = append(snap.Responses, &Response{
			SurveyID:    SurveyID(surveyID),
			Respondent:  Principal(respondent),
			Answers:     handles,
			SubmittedAt: submittedAt,
		})
	}
	if err := respRows.Err(); err != nil {
		return nil, err
	}

	revRows, err := s.db.QueryContext(ctx, `
		SELECT survey_id, respondent, answers FROM reveals
	`)
	if err != nil {
		return nil, err
	}
	defer revRows.Close()

	for revRows.Next() {
		var (
			surveyID   int64
			respondent string
			answers    []int64
		)
		if err := revRows.Scan(&surveyID, &respondent, pq.Array(&answers)); err != nil {
			return nil, fmt.Errorf("scanning reveal row: %w", err)
		}
		snap.Reveals = append(snap.Reveals, &RevealedResponse{
			SurveyID:   SurveyID(surveyID),
			Respondent: Principal(respondent),
			Answers:    answers,
		})
	}
	if err := revRows.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
