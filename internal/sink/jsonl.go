// Package sink delivers event batches to the analytics store.
package sink

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/alfredjeanlab/fieldship/internal/model"
)

// EncodeJSONL writes one event per line in wire shape.
func EncodeJSONL(w io.Writer, events []model.Event) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("encode event %d: %w", i, err)
		}
	}
	return nil
}
