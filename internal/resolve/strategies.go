package resolve

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dieee-93/g-admin-sync/internal/command"
	"github.com/dieee-93/g-admin-sync/internal/policy"
	"github.com/dieee-93/g-admin-sync/internal/store"
)

// Strategy names, as they appear in outcomes and logs.
const (
	StrategyBusinessRule = "business_rule"
	StrategyMonetary     = "monetary_precision"
	StrategyLastWriter   = "last_writer_wins"
	StrategyAuthority    = "user_authority"
	StrategyQuantity     = "quantity_accumulation"
	StrategyStatus       = "status_precedence"
	StrategyThreeWay     = "three_way_merge"
	StrategyArray        = "array_merge"
	StrategyPreference   = "user_preference"
	StrategyManual       = "manual"
)

// DefaultStrategies builds the full chain, highest priority first:
// business rule, monetary precision, last-writer-wins, user authority,
// quantity accumulation, status precedence, three-way merge, array
// merge, user preference, manual fallback.
func DefaultStrategies(pol policy.Policy) []Strategy {
	return []Strategy{
		businessRuleStrategy(pol),
		monetaryStrategy(pol),
		lastWriterStrategy(),
		authorityStrategy(pol),
		quantityStrategy(),
		statusPrecedenceStrategy(pol),
		threeWayStrategy(),
		arrayStrategy(),
		preferenceStrategy(),
		manualStrategy(),
	}
}

func isStatusField(c Conflict) bool {
	return c.FieldType == FieldStatus || strings.EqualFold(c.Field, "status")
}

func isQuantityField(c Conflict) bool {
	if c.FieldType == FieldQuantity {
		return true
	}
	field := strings.ToLower(c.Field)
	for _, marker := range []string{"quantity", "count", "total", "amount"} {
		if strings.Contains(field, marker) {
			return true
		}
	}
	return false
}

// lwwOutcome resolves by write recency. Not successful when either
// timestamp is missing or they are equal.
func lwwOutcome(c Conflict) Outcome {
	lt, rt := c.Metadata.LocalTimestamp, c.Metadata.RemoteTimestamp
	if lt.IsZero() || rt.IsZero() || lt.Equal(rt) {
		return Outcome{Explanation: "timestamps do not order the writes"}
	}
	if rt.After(lt) {
		return Outcome{
			Success:       true,
			ResolvedValue: c.RemoteValue,
			Confidence:    80,
			Explanation: fmt.Sprintf("remote write at %s is newer than local at %s",
				rt.Format(time.RFC3339), lt.Format(time.RFC3339)),
		}
	}
	return Outcome{
		Success:       true,
		ResolvedValue: c.LocalValue,
		Confidence:    80,
		Explanation: fmt.Sprintf("local write at %s is newer than remote at %s",
			lt.Format(time.RFC3339), rt.Format(time.RFC3339)),
	}
}

// resolveStatusByRank picks the status further along the entity's
// precedence chain. A remote cancellation needs more than baseline
// authority; otherwise it is rejected in favor of the local value with
// a notify side effect.
func resolveStatusByRank(pol policy.Policy, c Conflict) Outcome {
	local, _ := asString(c.LocalValue)
	remote, _ := asString(c.RemoteValue)
	localRank := pol.StatusRank(c.EntityType, local)
	remoteRank := pol.StatusRank(c.EntityType, remote)

	if remote == "cancelled" && remoteRank != localRank &&
		pol.Authority(c.Metadata.RemoteRole) <= pol.DefaultAuthority {
		role := c.Metadata.RemoteRole
		if role == "" {
			role = "unknown"
		}
		return Outcome{
			Success:       true,
			ResolvedValue: local,
			Confidence:    85,
			Explanation:   fmt.Sprintf("remote cancellation by %s actor rejected, keeping %q", role, local),
			SideEffects: []SideEffect{{
				Kind:   EffectNotify,
				Target: c.EntityType,
				Detail: map[string]any{
					"entityId": c.EntityID,
					"rejected": remote,
					"role":     c.Metadata.RemoteRole,
				},
			}},
		}
	}

	switch {
	case localRank == remoteRank:
		return Outcome{
			Success:       true,
			ResolvedValue: local,
			Confidence:    100,
			Explanation:   fmt.Sprintf("both sides report status %q", local),
		}
	case remoteRank > localRank:
		return Outcome{
			Success:       true,
			ResolvedValue: remote,
			Confidence:    85,
			Explanation:   fmt.Sprintf("status %q supersedes %q in the %s chain", remote, local, c.EntityType),
		}
	default:
		return Outcome{
			Success:       true,
			ResolvedValue: local,
			Confidence:    85,
			Explanation:   fmt.Sprintf("status %q supersedes %q in the %s chain", local, remote, c.EntityType),
		}
	}
}

func businessRuleStrategy(pol policy.Policy) Strategy {
	return Strategy{
		Name:     StrategyBusinessRule,
		Priority: 100,
		Applies: func(c Conflict) bool {
			if !isStatusField(c) {
				return false
			}
			local, lok := asString(c.LocalValue)
			remote, rok := asString(c.RemoteValue)
			if !lok || !rok {
				return false
			}
			return pol.StatusRank(c.EntityType, local) >= 0 && pol.StatusRank(c.EntityType, remote) >= 0
		},
		Resolve: func(c Conflict) Outcome {
			return resolveStatusByRank(pol, c)
		},
	}
}

func monetaryStrategy(pol policy.Policy) Strategy {
	scale := math.Pow(10, float64(pol.MonetaryScale))
	round := func(v float64) float64 {
		return math.Round(v*scale) / scale
	}
	return Strategy{
		Name:     StrategyMonetary,
		Priority: 90,
		Applies: func(c Conflict) bool {
			if c.FieldType != FieldMonetary {
				return false
			}
			_, lok := asFloat(c.LocalValue)
			_, rok := asFloat(c.RemoteValue)
			return lok && rok
		},
		Resolve: func(c Conflict) Outcome {
			local, _ := asFloat(c.LocalValue)
			remote, _ := asFloat(c.RemoteValue)
			roundedLocal, roundedRemote := round(local), round(remote)

			if roundedLocal == roundedRemote {
				return Outcome{
					Success:       true,
					ResolvedValue: roundedLocal,
					Confidence:    100,
					Explanation: fmt.Sprintf("values agree at %d decimal places (%v vs %v)",
						pol.MonetaryScale, local, remote),
				}
			}

			audit := SideEffect{
				Kind:   EffectLog,
				Target: c.EntityType,
				Detail: map[string]any{
					"field":       c.Field,
					"localValue":  local,
					"remoteValue": remote,
					"delta":       remote - local,
				},
			}
			out := lwwOutcome(c)
			if !out.Success {
				out.Explanation = "monetary values diverge and " + out.Explanation
			} else {
				out.Confidence = 70
				out.Explanation = "monetary values diverge; " + out.Explanation
			}
			out.SideEffects = append(out.SideEffects, audit)
			return out
		},
	}
}

func lastWriterStrategy() Strategy {
	return Strategy{
		Name:     StrategyLastWriter,
		Priority: 80,
		Applies: func(c Conflict) bool {
			lt, rt := c.Metadata.LocalTimestamp, c.Metadata.RemoteTimestamp
			return !lt.IsZero() && !rt.IsZero() && !lt.Equal(rt)
		},
		Resolve: lwwOutcome,
	}
}

func authorityStrategy(pol policy.Policy) Strategy {
	return Strategy{
		Name:     StrategyAuthority,
		Priority: 70,
		Applies: func(c Conflict) bool {
			m := c.Metadata
			if m.LocalRole == "" || m.RemoteRole == "" {
				return false
			}
			return pol.Authority(m.LocalRole) != pol.Authority(m.RemoteRole)
		},
		Resolve: func(c Conflict) Outcome {
			localAuth := pol.Authority(c.Metadata.LocalRole)
			remoteAuth := pol.Authority(c.Metadata.RemoteRole)
			if localAuth > remoteAuth {
				return Outcome{
					Success:       true,
					ResolvedValue: c.LocalValue,
					Confidence:    75,
					Explanation: fmt.Sprintf("local %s (authority %d) outranks remote %s (%d)",
						c.Metadata.LocalRole, localAuth, c.Metadata.RemoteRole, remoteAuth),
				}
			}
			return Outcome{
				Success:       true,
				ResolvedValue: c.RemoteValue,
				Confidence:    75,
				Explanation: fmt.Sprintf("remote %s (authority %d) outranks local %s (%d)",
					c.Metadata.RemoteRole, remoteAuth, c.Metadata.LocalRole, localAuth),
			}
		},
	}
}

func quantityStrategy() Strategy {
	return Strategy{
		Name:     StrategyQuantity,
		Priority: 60,
		Applies: func(c Conflict) bool {
			if !isQuantityField(c) || !c.HasBase {
				return false
			}
			_, bok := asFloat(c.BaseValue)
			_, lok := asFloat(c.LocalValue)
			_, rok := asFloat(c.RemoteValue)
			return bok && lok && rok
		},
		Resolve: func(c Conflict) Outcome {
			base, _ := asFloat(c.BaseValue)
			local, _ := asFloat(c.LocalValue)
			remote, _ := asFloat(c.RemoteValue)
			merged := base + (local - base) + (remote - base)

			out := Outcome{
				Success:       true,
				ResolvedValue: merged,
				Confidence:    85,
				Explanation: fmt.Sprintf("additive merge of base %v with local delta %+v and remote delta %+v",
					base, local-base, remote-base),
			}
			// Accumulation is only trustworthy when the base is a proven
			// common ancestor.
			if c.Metadata.BaseVersion == nil {
				out.Confidence = 60
				out.RequiresUserConfirmation = true
				out.Explanation += "; base provenance unverified"
			}
			return out
		},
	}
}

func statusPrecedenceStrategy(pol policy.Policy) Strategy {
	chainKnown := func(c Conflict) bool {
		local, lok := asString(c.LocalValue)
		remote, rok := asString(c.RemoteValue)
		if !lok || !rok {
			return false
		}
		return pol.StatusRank(c.EntityType, local) >= 0 && pol.StatusRank(c.EntityType, remote) >= 0
	}
	return Strategy{
		Name:     StrategyStatus,
		Priority: 50,
		Applies: func(c Conflict) bool {
			if !isStatusField(c) {
				return false
			}
			_, lok := asString(c.LocalValue)
			_, rok := asString(c.RemoteValue)
			if !lok || !rok {
				return false
			}
			lt, rt := c.Metadata.LocalTimestamp, c.Metadata.RemoteTimestamp
			return chainKnown(c) || (!lt.IsZero() && !rt.IsZero() && !lt.Equal(rt))
		},
		Resolve: func(c Conflict) Outcome {
			if chainKnown(c) {
				return resolveStatusByRank(pol, c)
			}
			out := lwwOutcome(c)
			if out.Success {
				out.Explanation = "no precedence chain for " + c.EntityType + "; " + out.Explanation
			}
			return out
		},
	}
}

func threeWayStrategy() Strategy {
	return Strategy{
		Name:     StrategyThreeWay,
		Priority: 40,
		Applies: func(c Conflict) bool {
			return c.HasBase
		},
		Resolve: func(c Conflict) Outcome {
			if valuesEqual(c.LocalValue, c.BaseValue) {
				return Outcome{
					Success:       true,
					ResolvedValue: c.RemoteValue,
					Confidence:    90,
					Explanation:   "local side unchanged from base, remote edit wins",
				}
			}
			if valuesEqual(c.RemoteValue, c.BaseValue) {
				return Outcome{
					Success:       true,
					ResolvedValue: c.LocalValue,
					Confidence:    90,
					Explanation:   "remote side unchanged from base, local edit wins",
				}
			}

			if c.FieldType == FieldObject {
				base, bok := asObject(c.BaseValue)
				local, lok := asObject(c.LocalValue)
				remote, rok := asObject(c.RemoteValue)
				if bok && lok && rok {
					merged, conflicted := mergeObjects(base, local, remote)
					explanation := "per-key merge of diverging objects"
					if len(conflicted) > 0 {
						explanation += "; remote won contested keys: " + strings.Join(conflicted, ", ")
					}
					return Outcome{
						Success:       true,
						ResolvedValue: merged,
						Confidence:    65,
						Explanation:   explanation,
					}
				}
			}

			out := lwwOutcome(c)
			if out.Success {
				out.Confidence = 60
				out.Explanation = "both sides changed from base; " + out.Explanation
				return out
			}
			return Outcome{
				Explanation: "both sides changed from base and " + out.Explanation,
			}
		},
	}
}

// mergeObjects merges two descendants of base key by key. A key both
// sides changed goes to remote; the contested keys come back sorted.
func mergeObjects(base, local, remote map[string]any) (map[string]any, []string) {
	keys := map[string]struct{}{}
	for k := range base {
		keys[k] = struct{}{}
	}
	for k := range local {
		keys[k] = struct{}{}
	}
	for k := range remote {
		keys[k] = struct{}{}
	}

	merged := make(map[string]any, len(keys))
	var conflicted []string
	for k := range keys {
		baseVal, inBase := base[k]
		localVal, inLocal := local[k]
		remoteVal, inRemote := remote[k]

		localChanged := inLocal != inBase || (inLocal && !valuesEqual(localVal, baseVal))
		remoteChanged := inRemote != inBase || (inRemote && !valuesEqual(remoteVal, baseVal))

		switch {
		case localChanged && remoteChanged:
			if !valuesEqual(localVal, remoteVal) || inLocal != inRemote {
				conflicted = append(conflicted, k)
			}
			if inRemote {
				merged[k] = remoteVal
			}
		case localChanged:
			if inLocal {
				merged[k] = localVal
			}
		case remoteChanged:
			if inRemote {
				merged[k] = remoteVal
			}
		default:
			if inBase {
				merged[k] = baseVal
			}
		}
	}
	sort.Strings(conflicted)
	return merged, conflicted
}

func arrayStrategy() Strategy {
	return Strategy{
		Name:     StrategyArray,
		Priority: 30,
		Applies: func(c Conflict) bool {
			_, lok := asArray(c.LocalValue)
			_, rok := asArray(c.RemoteValue)
			return lok && rok
		},
		Resolve: func(c Conflict) Outcome {
			local, _ := asArray(c.LocalValue)
			remote, _ := asArray(c.RemoteValue)

			seen := map[string]struct{}{}
			merged := make([]any, 0, len(local)+len(remote))
			for _, v := range append(append([]any{}, local...), remote...) {
				key, err := command.MarshalCanonical(v)
				if err != nil {
					continue
				}
				if _, dup := seen[string(key)]; dup {
					continue
				}
				seen[string(key)] = struct{}{}
				merged = append(merged, v)
			}

			return Outcome{
				Success:       true,
				ResolvedValue: merged,
				Confidence:    75,
				Explanation: fmt.Sprintf("union of %d local and %d remote elements, %d unique",
					len(local), len(remote), len(merged)),
			}
		},
	}
}

func preferenceStrategy() Strategy {
	return Strategy{
		Name:     StrategyPreference,
		Priority: 20,
		Applies: func(c Conflict) bool {
			return c.Preference == store.PreferAlwaysLocal || c.Preference == store.PreferAlwaysRemote
		},
		Resolve: func(c Conflict) Outcome {
			value := c.LocalValue
			if c.Preference == store.PreferAlwaysRemote {
				value = c.RemoteValue
			}
			return Outcome{
				Success:       true,
				ResolvedValue: value,
				Confidence:    90,
				Explanation:   fmt.Sprintf("stored preference %s for %s.%s", c.Preference, c.EntityType, c.Field),
			}
		},
	}
}

func manualStrategy() Strategy {
	return Strategy{
		Name:     StrategyManual,
		Priority: 10,
		Applies: func(Conflict) bool {
			return true
		},
		Resolve: func(c Conflict) Outcome {
			return Outcome{
				Success:                  true,
				ResolvedValue:            c.LocalValue,
				Confidence:               30,
				Explanation:              "no automatic strategy applied, keeping local value pending user confirmation",
				RequiresUserConfirmation: true,
			}
		},
	}
}
