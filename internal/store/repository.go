package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/textio/internal/model"
)

// Repository maps pipeline records onto warehouse tables
type Repository struct {
	w Warehouse
}

// NewRepository creates a repository over w
func NewRepository(w Warehouse) *Repository {
	return &Repository{w: w}
}

// UserInput is one submitted note
type UserInput struct {
	RewriteUUID string
	ReviewID    string
	Ruleset     string
	Text        string
	Session     model.SessionRef
}

// EvaluationRow is a step 1 summary or a step 2 rewrite
type EvaluationRow struct {
	UserInputID *int64
	RewriteUUID string
	Step        model.Step
	Score       *int
	Evaluation  model.Evaluation
	Rewrite     string
}

// AnswerRow is one answer linked to its prompt
type AnswerRow struct {
	PromptID    *int64
	RewriteID   string
	RewriteUUID string
	Answer      string
}

// InputState is the latest text of one input field
type InputState struct {
	AppSessionID string    `json:"appSessionId"`
	InputField   string    `json:"inputField"`
	LineItemID   string    `json:"lineItemId,omitempty"`
	Value        string    `json:"value"`
	EvaluationID *int64    `json:"evaluationId"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// HistoryEntry is one persisted evaluation or rewrite
type HistoryEntry struct {
	EvaluationID int64            `json:"evaluationId"`
	UserInputID  *int64           `json:"userInputId"`
	RewriteUUID  string           `json:"rewriteUuid"`
	Step         model.Step       `json:"step"`
	Score        *int64           `json:"score"`
	Evaluation   model.Evaluation `json:"evaluation,omitempty"`
	Rewrite      string           `json:"rewrite,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// HistoryQuery selects history by input id or by session; one must be set
type HistoryQuery struct {
	UserInputID  *int64
	AppSessionID string
	Limit        int
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func returnedID(rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, fmt.Errorf("no id returned")
	}
	id := rows[0].Int64("ID")
	if id == nil {
		return 0, fmt.Errorf("no id returned")
	}
	return *id, nil
}

// InsertUserInput stores a note and returns its id
func (r *Repository) InsertUserInput(ctx context.Context, in UserInput) (int64, error) {
	rows, err := r.w.Execute(ctx, `
		INSERT INTO USER_INPUTS (REWRITE_UUID, REVIEW_ID, RULESET, INPUT_TEXT, APP_SESSION_ID, CASE_ID, LINE_ITEM_ID, INPUT_FIELD)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ID`,
		in.RewriteUUID, nullable(in.ReviewID), in.Ruleset, in.Text,
		nullable(in.Session.AppSessionID), nullable(in.Session.CaseID),
		nullable(in.Session.LineItemID), nullable(in.Session.InputField))
	if err != nil {
		return 0, fmt.Errorf("insert user input: %w", err)
	}
	return returnedID(rows)
}

// InsertPrompt stores one issued question and returns its id
func (r *Repository) InsertPrompt(ctx context.Context, userInputID *int64, q model.IssuedQuestion) (int64, error) {
	rows, err := r.w.Execute(ctx, `
		INSERT INTO LLM_PROMPTS (USER_INPUT_ID, REWRITE_UUID, REWRITE_ID, CRITERION, DISPLAY_NAME, QUESTION)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING ID`,
		userInputID, q.RewriteUUID, q.RewriteID, q.Criterion, nullable(q.DisplayName), q.Question)
	if err != nil {
		return 0, fmt.Errorf("insert prompt: %w", err)
	}
	return returnedID(rows)
}

// InsertEvaluation stores an evaluation summary or rewrite and returns its id
func (r *Repository) InsertEvaluation(ctx context.Context, e EvaluationRow) (int64, error) {
	var blob any
	if e.Evaluation != nil {
		data, err := json.Marshal(e.Evaluation)
		if err != nil {
			return 0, fmt.Errorf("encode evaluation: %w", err)
		}
		blob = string(data)
	}

	rows, err := r.w.Execute(ctx, `
		INSERT INTO LLM_EVALUATIONS (USER_INPUT_ID, REWRITE_UUID, STEP, SCORE, EVALUATION_JSON, REWRITE_TEXT)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING ID`,
		e.UserInputID, nullable(e.RewriteUUID), int(e.Step), e.Score, blob, nullable(e.Rewrite))
	if err != nil {
		return 0, fmt.Errorf("insert evaluation: %w", err)
	}
	return returnedID(rows)
}

// InsertAnswer stores one linked answer and returns its id
func (r *Repository) InsertAnswer(ctx context.Context, a AnswerRow) (int64, error) {
	rows, err := r.w.Execute(ctx, `
		INSERT INTO USER_ANSWERS (PROMPT_ID, REWRITE_ID, REWRITE_UUID, ANSWER)
		VALUES (?, ?, ?, ?)
		RETURNING ID`,
		a.PromptID, a.RewriteID, a.RewriteUUID, a.Answer)
	if err != nil {
		return 0, fmt.Errorf("insert answer: %w", err)
	}
	return returnedID(rows)
}

// UpsertInputState records the latest value of an input field
func (r *Repository) UpsertInputState(ctx context.Context, s InputState) error {
	_, err := r.w.Execute(ctx, `
		INSERT INTO LAST_INPUT_STATE (APP_SESSION_ID, INPUT_FIELD, LINE_ITEM_ID, INPUT_VALUE, EVALUATION_ID, LAST_UPDATED)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (APP_SESSION_ID, INPUT_FIELD, LINE_ITEM_ID) DO UPDATE SET
			INPUT_VALUE = excluded.INPUT_VALUE,
			EVALUATION_ID = excluded.EVALUATION_ID,
			LAST_UPDATED = excluded.LAST_UPDATED`,
		s.AppSessionID, s.InputField, s.LineItemID, s.Value, s.EvaluationID)
	if err != nil {
		return fmt.Errorf("upsert input state: %w", err)
	}
	return nil
}

// QuestionByRewriteID returns the question issued under id, or ErrNotFound
func (r *Repository) QuestionByRewriteID(ctx context.Context, id string) (*model.IssuedQuestion, error) {
	rows, err := r.w.Execute(ctx, `
		SELECT ID, REWRITE_ID, REWRITE_UUID, CRITERION, DISPLAY_NAME, QUESTION
		FROM LLM_PROMPTS
		WHERE REWRITE_ID = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("select prompt: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	row := rows[0]
	return &model.IssuedQuestion{
		RewriteID:   row.String("REWRITE_ID"),
		RewriteUUID: row.String("REWRITE_UUID"),
		Criterion:   row.String("CRITERION"),
		DisplayName: row.String("DISPLAY_NAME"),
		Question:    row.String("QUESTION"),
		PromptID:    row.Int64("ID"),
	}, nil
}

// QuestionsByRewriteUUID returns every question issued in one batch, oldest first
func (r *Repository) QuestionsByRewriteUUID(ctx context.Context, rewriteUUID string) ([]model.IssuedQuestion, error) {
	rows, err := r.w.Execute(ctx, `
		SELECT ID, REWRITE_ID, REWRITE_UUID, CRITERION, DISPLAY_NAME, QUESTION
		FROM LLM_PROMPTS
		WHERE REWRITE_UUID = ?
		ORDER BY ID`, rewriteUUID)
	if err != nil {
		return nil, fmt.Errorf("select prompts: %w", err)
	}

	out := make([]model.IssuedQuestion, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.IssuedQuestion{
			RewriteID:   row.String("REWRITE_ID"),
			RewriteUUID: row.String("REWRITE_UUID"),
			Criterion:   row.String("CRITERION"),
			DisplayName: row.String("DISPLAY_NAME"),
			Question:    row.String("QUESTION"),
			PromptID:    row.Int64("ID"),
		})
	}
	return out, nil
}

// History returns persisted evaluations newest first
func (r *Repository) History(ctx context.Context, q HistoryQuery) ([]HistoryEntry, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var (
		rows []Row
		err  error
	)
	switch {
	case q.UserInputID != nil:
		rows, err = r.w.Execute(ctx, `
			SELECT ID, USER_INPUT_ID, REWRITE_UUID, STEP, SCORE, EVALUATION_JSON, REWRITE_TEXT, CREATED_AT
			FROM LLM_EVALUATIONS
			WHERE USER_INPUT_ID = ?
			ORDER BY ID DESC
			LIMIT ?`, *q.UserInputID, limit)
	case q.AppSessionID != "":
		rows, err = r.w.Execute(ctx, `
			SELECT E.ID, E.USER_INPUT_ID, E.REWRITE_UUID, E.STEP, E.SCORE, E.EVALUATION_JSON, E.REWRITE_TEXT, E.CREATED_AT
			FROM LLM_EVALUATIONS E
			JOIN USER_INPUTS U ON U.ID = E.USER_INPUT_ID
			WHERE U.APP_SESSION_ID = ?
			ORDER BY E.ID DESC
			LIMIT ?`, q.AppSessionID, limit)
	default:
		return nil, fmt.Errorf("history: userInputId or appSessionId is required")
	}
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}

	out := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry := HistoryEntry{
			UserInputID: row.Int64("USER_INPUT_ID"),
			RewriteUUID: row.String("REWRITE_UUID"),
			Score:       row.Int64("SCORE"),
			Rewrite:     row.String("REWRITE_TEXT"),
			CreatedAt:   row.Time("CREATED_AT"),
		}
		if id := row.Int64("ID"); id != nil {
			entry.EvaluationID = *id
		}
		if step := row.Int64("STEP"); step != nil {
			entry.Step = model.Step(*step)
		}
		if blob := row.String("EVALUATION_JSON"); blob != "" {
			if err := json.Unmarshal([]byte(blob), &entry.Evaluation); err != nil {
				return nil, fmt.Errorf("decode evaluation %d: %w", entry.EvaluationID, err)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// InputState returns the latest value of a field, or ErrNotFound
func (r *Repository) InputState(ctx context.Context, appSessionID, inputField, lineItemID string) (*InputState, error) {
	rows, err := r.w.Execute(ctx, `
		SELECT APP_SESSION_ID, INPUT_FIELD, LINE_ITEM_ID, INPUT_VALUE, EVALUATION_ID, LAST_UPDATED
		FROM LAST_INPUT_STATE
		WHERE APP_SESSION_ID = ? AND INPUT_FIELD = ? AND LINE_ITEM_ID = ?`,
		appSessionID, inputField, lineItemID)
	if err != nil {
		return nil, fmt.Errorf("select input state: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	row := rows[0]
	return &InputState{
		AppSessionID: row.String("APP_SESSION_ID"),
		InputField:   row.String("INPUT_FIELD"),
		LineItemID:   row.String("LINE_ITEM_ID"),
		Value:        row.String("INPUT_VALUE"),
		EvaluationID: row.Int64("EVALUATION_ID"),
		LastUpdated:  row.Time("LAST_UPDATED"),
	}, nil
}

// LoadRuleSet returns the newest active version of a ruleset, matched by
// name or input type, or ErrNotFound
func (r *Repository) LoadRuleSet(ctx context.Context, name string) (*model.RuleSet, error) {
	rows, err := r.w.Execute(ctx, `
		SELECT ID, NAME, VERSION, INPUT_TYPE, SKELETON, ADVICE_JSON
		FROM RULESETS
		WHERE ACTIVE = 1 AND (NAME = ? OR INPUT_TYPE = ?)
		ORDER BY NAME = ? DESC, VERSION DESC
		LIMIT 1`, name, name, name)
	if err != nil {
		return nil, fmt.Errorf("select ruleset: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	head := rows[0]
	rs := &model.RuleSet{
		Name:      head.String("NAME"),
		InputType: head.String("INPUT_TYPE"),
		Skeleton:  head.String("SKELETON"),
	}
	if v := head.Int64("VERSION"); v != nil {
		rs.Version = int(*v)
	}
	if advice := head.String("ADVICE_JSON"); advice != "" {
		if err := json.Unmarshal([]byte(advice), &rs.Advice); err != nil {
			return nil, fmt.Errorf("decode advice for %s: %w", rs.Name, err)
		}
	}

	criteria, err := r.w.Execute(ctx, `
		SELECT ID, NAME, DISPLAY_NAME, WEIGHT, DESCRIPTION
		FROM CRITERIA
		WHERE RULESET_ID = ?
		ORDER BY POSITION, ID`, head["ID"])
	if err != nil {
		return nil, fmt.Errorf("select criteria: %w", err)
	}
	for _, row := range criteria {
		rs.Criteria = append(rs.Criteria, model.Criterion{
			ID:          row.String("ID"),
			Name:        row.String("NAME"),
			DisplayName: row.String("DISPLAY_NAME"),
			Weight:      row.Float("WEIGHT"),
			Description: row.String("DESCRIPTION"),
		})
	}
	return rs, nil
}

// SaveRuleSet inserts a ruleset version and its criteria.
// An existing name and version is replaced.
func (r *Repository) SaveRuleSet(ctx context.Context, rs model.RuleSet) (int64, error) {
	version := rs.Version
	if version <= 0 {
		version = 1
	}

	var advice any
	if len(rs.Advice) > 0 {
		data, err := json.Marshal(rs.Advice)
		if err != nil {
			return 0, fmt.Errorf("encode advice: %w", err)
		}
		advice = string(data)
	}

	rows, err := r.w.Execute(ctx, `
		INSERT INTO RULESETS (NAME, VERSION, INPUT_TYPE, SKELETON, ADVICE_JSON, ACTIVE)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT (NAME, VERSION) DO UPDATE SET
			INPUT_TYPE = excluded.INPUT_TYPE,
			SKELETON = excluded.SKELETON,
			ADVICE_JSON = excluded.ADVICE_JSON,
			ACTIVE = 1
		RETURNING ID`,
		rs.Name, version, rs.InputType, nullable(rs.Skeleton), advice)
	if err != nil {
		return 0, fmt.Errorf("upsert ruleset: %w", err)
	}
	id, err := returnedID(rows)
	if err != nil {
		return 0, err
	}

	if _, err := r.w.Execute(ctx, `DELETE FROM CRITERIA WHERE RULESET_ID = ?`, id); err != nil {
		return 0, fmt.Errorf("clear criteria: %w", err)
	}
	for i, c := range rs.Criteria {
		if _, err := r.w.Execute(ctx, `
			INSERT INTO CRITERIA (RULESET_ID, NAME, DISPLAY_NAME, WEIGHT, DESCRIPTION, POSITION)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, c.Name, nullable(c.DisplayName), c.Weight, nullable(c.Description), i); err != nil {
			return 0, fmt.Errorf("insert criterion %s: %w", c.Name, err)
		}
	}
	return id, nil
}
