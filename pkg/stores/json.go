package stores

import (
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// storeSchemaSource describes the import/export document.
const storeSchemaSource = `
#Value: {
	key:   string & != ""
	value: string
}

#Table: {
	name:   string & != ""
	values: [...#Value]
}

#Store: {
	database:   string & != ""
	encrypted?: bool
	tables:     [...#Table]
}
`

// cue values are not safe for concurrent use.
var schema struct {
	once sync.Once
	mu   sync.Mutex
	ctx  *cue.Context
	def  cue.Value
	err  error
}

func storeSchema() (*cue.Context, cue.Value, error) {
	schema.once.Do(func() {
		schema.ctx = cuecontext.New()
		val := schema.ctx.CompileString(storeSchemaSource, cue.Filename("store.cue"))
		if err := val.Err(); err != nil {
			schema.err = fmt.Errorf("failed to compile store schema: %w", err)
			return
		}
		schema.def = val.LookupPath(cue.ParsePath("#Store"))
		if err := schema.def.Err(); err != nil {
			schema.err = fmt.Errorf("failed to load store schema: %w", err)
		}
	})
	return schema.ctx, schema.def, schema.err
}

// ValidateStoreJSON checks data against the store document schema.
func ValidateStoreJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	ctx, def, err := storeSchema()
	if err != nil {
		return err
	}

	schema.mu.Lock()
	defer schema.mu.Unlock()

	val := ctx.Encode(raw)
	if err := val.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

// ParseStoreDump validates and decodes a store document.
func ParseStoreDump(data []byte) (*StoreDump, error) {
	if err := ValidateStoreJSON(data); err != nil {
		return nil, err
	}
	var dump StoreDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return &dump, nil
}
