package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	AgentSequence = "agent"
	AgentIDPrefix = "AGT-"
	agentPadding  = 4
)

// NextSequenceInTx increments the named counter and formats it as prefix plus
// a zero-padded number.
func NextSequenceInTx(ctx context.Context, tx *sqlx.Tx, name, prefix string, padding int) (string, error) {
	var lastNo int
	err := tx.GetContext(ctx, &lastNo, tx.Rebind("SELECT last_no FROM code_sequences WHERE name = ?"), name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("sequence '%s' not found", name)
		}
		return "", fmt.Errorf("failed to get sequence '%s': %w", name, err)
	}

	newNo := lastNo + 1
	_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE code_sequences SET last_no = ? WHERE name = ?`), newNo, name)
	if err != nil {
		return "", fmt.Errorf("failed to update sequence '%s': %w", name, err)
	}

	format := fmt.Sprintf("%s%%0%dd", prefix, padding)
	return fmt.Sprintf(format, newNo), nil
}

// InitializeSequenceFromMaxAgentID moves the agent counter past the highest
// agent id already stored, so imported profiles never collide with new ones.
func InitializeSequenceFromMaxAgentID(ctx context.Context, tx *sqlx.Tx) error {
	var ids []string
	err := tx.SelectContext(ctx, &ids, tx.Rebind("SELECT agent_id FROM agent_profiles WHERE agent_id LIKE ?"), AgentIDPrefix+"%")
	if err != nil {
		return fmt.Errorf("failed to read agent ids: %w", err)
	}

	maxNum := 0
	for _, id := range ids {
		n, err := strconv.Atoi(strings.TrimPrefix(id, AgentIDPrefix))
		if err == nil && n > maxNum {
			maxNum = n
		}
	}

	var current int
	if err := tx.GetContext(ctx, &current, tx.Rebind("SELECT last_no FROM code_sequences WHERE name = ?"), AgentSequence); err != nil {
		return fmt.Errorf("failed to get sequence '%s': %w", AgentSequence, err)
	}
	if current >= maxNum {
		return nil
	}

	zap.S().Infof("[Sequence] Setting '%s' last_no to %d", AgentSequence, maxNum)
	_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE code_sequences SET last_no = ? WHERE name = ?`), maxNum, AgentSequence)
	return err
}

func nextAgentIDInTx(ctx context.Context, tx *sqlx.Tx) (string, error) {
	return NextSequenceInTx(ctx, tx, AgentSequence, AgentIDPrefix, agentPadding)
}
