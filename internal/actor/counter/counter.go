// Package counter provides a minimal EventApplier used by cmd/actorsim and
// the actor package's own tests: a running integer total driven by delta
// events. It exists to give the otherwise-generic core something concrete
// to replay, snapshot and archive.
package counter

import (
	"encoding/json"
	"fmt"

	"github.com/abdoElHodaky/actorsourcing/internal/actor"
)

// Deposited is raised to add delta to the running total. A negative delta
// withdraws.
type Deposited struct {
	Delta int64 `json:"delta"`
}

// Applier implements actor.EventApplier over an int64 running total.
type Applier struct{}

func (Applier) New() interface{} { return int64(0) }

func (Applier) Apply(payload interface{}, event actor.FullyEvent) (interface{}, error) {
	total, ok := payload.(int64)
	if !ok {
		return nil, fmt.Errorf("counter: payload is %T, not int64", payload)
	}

	switch v := event.Event.(type) {
	case Deposited:
		return total + v.Delta, nil
	case []byte:
		// Replay hands the raw stored payload back rather than a decoded
		// event; unmarshal it the same way the codec would have.
		var d Deposited
		if err := json.Unmarshal(v, &d); err != nil {
			return nil, fmt.Errorf("counter: replay unmarshal: %w", err)
		}
		return total + d.Delta, nil
	case map[string]interface{}:
		if d, dok := v["delta"].(float64); dok {
			return total + int64(d), nil
		}
		return nil, fmt.Errorf("counter: event map missing numeric delta")
	default:
		return nil, fmt.Errorf("counter: event is %T, not Deposited", event.Event)
	}
}

// DecodeDeposited is a convenience for codecs that hand back a raw payload
// after replay rather than a concrete Deposited value.
func DecodeDeposited(payload []byte) (interface{}, error) {
	var d Deposited
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, err
	}
	return d, nil
}
