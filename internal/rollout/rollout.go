// Package rollout persists a closed agent's conversation history to disk so
// resume_agent can restore it later by agent id alone, without the caller
// supplying a fresh message.
//
// There is no teacher equivalent of this package to adapt directly (the
// harness has no persistence layer); the file-under-CodexHome layout and
// non-fatal-on-missing-file semantics follow internal/activities/
// instructions.go's LoadExecPolicy, and the item shape follows
// internal/history.ContextManager's data model.
//
// Grounded on codex-rs/core/src/tools/handlers/collab.rs resume_agent::handle,
// which on a NotFound agent status calls
// crate::rollout::find_thread_path_by_id_str(codex_home, agent_id) to locate
// a rollout file and agent_control.resume_agent_from_rollout to restore it;
// that lookup/restore machinery's own source is not part of this retrieval
// pack, so the on-disk format here (one JSON file per agent id, named after
// the id) is this package's own, not a transcription of the Rust one.
package rollout

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentmesh/ccmesh/internal/models"
)

// dirName is the subdirectory of CodexHome holding rollout files.
const dirName = "rollouts"

// FilePath returns the path a given agent's rollout is stored at under
// codexHome. Agent ids are opaque strings assigned by spawn_agent and are
// used verbatim as the file stem.
func FilePath(codexHome, agentID string) string {
	return filepath.Join(codexHome, dirName, agentID+".json")
}

// Encode serializes conversation items for storage.
func Encode(items []models.ConversationItem) ([]byte, error) {
	return json.Marshal(items)
}

// Decode deserializes conversation items previously written by Encode.
func Decode(data []byte) ([]models.ConversationItem, error) {
	var items []models.ConversationItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode rollout: %w", err)
	}
	return items, nil
}

// Save writes an agent's conversation history to its rollout file,
// creating the rollouts directory if needed. Overwrites any prior rollout
// for the same agent id.
func Save(codexHome, agentID string, items []models.ConversationItem) error {
	if codexHome == "" || agentID == "" {
		return fmt.Errorf("rollout save requires both codex_home and agent_id")
	}
	data, err := Encode(items)
	if err != nil {
		return err
	}
	path := FilePath(codexHome, agentID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create rollouts dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write rollout: %w", err)
	}
	return nil
}

// Load reads a rollout file back into conversation items. found is false
// (with a nil error) when no rollout exists for the agent id.
func Load(codexHome, agentID string) (items []models.ConversationItem, found bool, err error) {
	if codexHome == "" || agentID == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(FilePath(codexHome, agentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read rollout: %w", err)
	}
	items, err = Decode(data)
	if err != nil {
		return nil, false, err
	}
	return items, true, nil
}
