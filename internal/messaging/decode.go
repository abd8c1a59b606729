package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ACBRI/veritas.ia/internal/model"
	"github.com/ACBRI/veritas.ia/internal/offense"
	"github.com/ACBRI/veritas.ia/internal/wire"
)

// Decode parses one raw push message. A type this client does not handle
// yields wire.ErrUnknownType, which callers ignore.
func Decode(raw []byte, tr *offense.Translator, now time.Time) (model.PushEvent, error) {
	var env wire.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.PushEvent{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return model.PushEvent{}, fmt.Errorf("decode envelope: missing type")
	}
	return env.Decode(tr, now)
}
