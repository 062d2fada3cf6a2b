package policy

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// policyFile is the on-disk shape of a policy document. Durations are
// plain millisecond integers so policy files stay arithmetic-free.
// Pointer fields distinguish "absent" from "explicit zero" when merging
// over defaults.
type policyFile struct {
	Priorities      map[string]int `json:"priorities"`
	DefaultPriority *int           `json:"defaultPriority"`

	Sync *struct {
		MaxRetries     *int `json:"maxRetries"`
		InitialDelayMs *int `json:"initialDelayMs"`
		MaxDelayMs     *int `json:"maxDelayMs"`
		BatchSize      *int `json:"batchSize"`
		DebounceMs     *int `json:"debounceMs"`
		FlapWindowMs   *int `json:"flapWindowMs"`
		FlapThreshold  *int `json:"flapThreshold"`
	} `json:"sync"`

	Authority *struct {
		Ranks   map[string]int `json:"ranks"`
		Default *int           `json:"default"`
	} `json:"authority"`

	StatusPrecedence map[string][]string `json:"statusPrecedence"`
	MonetaryScale    *int                `json:"monetaryScale"`
}

// Load reads a CUE policy file and merges it over the defaults.
//
// The file is compiled with a fresh CUE context; any constraint the file
// itself declares (e.g. `maxRetries: >=1 & <=10`) is enforced by CUE
// before decoding. The merged policy is validated before returning.
func Load(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}

	cctx := cuecontext.New()
	val := cctx.CompileBytes(data, cue.Filename(path))
	if err := val.Err(); err != nil {
		return Policy{}, fmt.Errorf("compile policy: %w", err)
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return Policy{}, fmt.Errorf("validate policy: %w", err)
	}

	var file policyFile
	if err := val.Decode(&file); err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}

	p := merge(Default(), file)
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// merge applies the fields present in a policy file over the base policy.
// Maps replace the default table entirely when given; scalar fields
// override only when present.
func merge(base Policy, file policyFile) Policy {
	p := base

	if file.Priorities != nil {
		p.EntityPriorities = file.Priorities
	}
	if file.DefaultPriority != nil {
		p.DefaultPriority = *file.DefaultPriority
	}

	if s := file.Sync; s != nil {
		if s.MaxRetries != nil {
			p.MaxRetries = *s.MaxRetries
		}
		if s.InitialDelayMs != nil {
			p.InitialDelay = time.Duration(*s.InitialDelayMs) * time.Millisecond
		}
		if s.MaxDelayMs != nil {
			p.MaxDelay = time.Duration(*s.MaxDelayMs) * time.Millisecond
		}
		if s.BatchSize != nil {
			p.BatchSize = *s.BatchSize
		}
		if s.DebounceMs != nil {
			p.DebounceDelay = time.Duration(*s.DebounceMs) * time.Millisecond
		}
		if s.FlapWindowMs != nil {
			p.FlapWindow = time.Duration(*s.FlapWindowMs) * time.Millisecond
		}
		if s.FlapThreshold != nil {
			p.FlapThreshold = *s.FlapThreshold
		}
	}

	if a := file.Authority; a != nil {
		if a.Ranks != nil {
			p.AuthorityRanks = a.Ranks
		}
		if a.Default != nil {
			p.DefaultAuthority = *a.Default
		}
	}

	if file.StatusPrecedence != nil {
		p.StatusPrecedence = file.StatusPrecedence
	}
	if file.MonetaryScale != nil {
		p.MonetaryScale = *file.MonetaryScale
	}

	return p
}
