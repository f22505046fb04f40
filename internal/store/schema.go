package store

import (
	"context"
	"fmt"
)

var schema = []string{
	`PRAGMA journal_mode=WAL`,
	`CREATE TABLE IF NOT EXISTS USER_INPUTS (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		REWRITE_UUID TEXT NOT NULL,
		REVIEW_ID TEXT,
		RULESET TEXT NOT NULL,
		INPUT_TEXT TEXT NOT NULL,
		APP_SESSION_ID TEXT,
		CASE_ID TEXT,
		LINE_ITEM_ID TEXT,
		INPUT_FIELD TEXT,
		CREATED_AT TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS IDX_USER_INPUTS_SESSION ON USER_INPUTS (APP_SESSION_ID)`,
	`CREATE INDEX IF NOT EXISTS IDX_USER_INPUTS_UUID ON USER_INPUTS (REWRITE_UUID)`,
	`CREATE TABLE IF NOT EXISTS LLM_PROMPTS (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		USER_INPUT_ID INTEGER REFERENCES USER_INPUTS (ID),
		REWRITE_UUID TEXT NOT NULL,
		REWRITE_ID TEXT NOT NULL UNIQUE,
		CRITERION TEXT NOT NULL,
		DISPLAY_NAME TEXT,
		QUESTION TEXT NOT NULL,
		CREATED_AT TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS LLM_EVALUATIONS (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		USER_INPUT_ID INTEGER REFERENCES USER_INPUTS (ID),
		REWRITE_UUID TEXT,
		STEP INTEGER NOT NULL,
		SCORE INTEGER,
		EVALUATION_JSON TEXT,
		REWRITE_TEXT TEXT,
		CREATED_AT TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS IDX_LLM_EVALUATIONS_INPUT ON LLM_EVALUATIONS (USER_INPUT_ID)`,
	`CREATE TABLE IF NOT EXISTS USER_ANSWERS (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		PROMPT_ID INTEGER REFERENCES LLM_PROMPTS (ID),
		REWRITE_ID TEXT NOT NULL,
		REWRITE_UUID TEXT NOT NULL,
		ANSWER TEXT NOT NULL,
		CREATED_AT TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS LAST_INPUT_STATE (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		APP_SESSION_ID TEXT NOT NULL,
		INPUT_FIELD TEXT NOT NULL,
		LINE_ITEM_ID TEXT NOT NULL DEFAULT '',
		INPUT_VALUE TEXT NOT NULL,
		EVALUATION_ID INTEGER,
		LAST_UPDATED TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (APP_SESSION_ID, INPUT_FIELD, LINE_ITEM_ID)
	)`,
	`CREATE TABLE IF NOT EXISTS RULESETS (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		NAME TEXT NOT NULL,
		VERSION INTEGER NOT NULL DEFAULT 1,
		INPUT_TYPE TEXT NOT NULL,
		SKELETON TEXT,
		ADVICE_JSON TEXT,
		ACTIVE INTEGER NOT NULL DEFAULT 1,
		UNIQUE (NAME, VERSION)
	)`,
	`CREATE TABLE IF NOT EXISTS CRITERIA (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		RULESET_ID INTEGER NOT NULL REFERENCES RULESETS (ID),
		NAME TEXT NOT NULL,
		DISPLAY_NAME TEXT,
		WEIGHT REAL NOT NULL,
		DESCRIPTION TEXT,
		POSITION INTEGER NOT NULL,
		UNIQUE (RULESET_ID, NAME)
	)`,
}

// Migrate creates the tables when missing
func Migrate(ctx context.Context, w Warehouse) error {
	for _, stmt := range schema {
		if _, err := w.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
