package tier

// ResolveFeatures computes the effective feature set for a tier id plus the
// project's stored overrides. The second return value is false when the tier
// id is not in the catalog; callers must treat that as a configuration error.
//
// Layering, later wins: for trials the underlying paid tier's features, then
// the tier's own features, then each override key that belongs to the feature
// schema. Explicit nil/false overrides are honored; unknown keys are ignored.
func ResolveFeatures(tierID string, overrides map[string]interface{}) (FeatureMap, bool) {
	t := Get(tierID)
	if t == nil {
		return nil, false
	}

	resolved := make(FeatureMap)
	if t.IsTrial {
		if paid := Get(t.TrialTierOf); paid != nil {
			for k, v := range paid.Features {
				resolved[k] = v
			}
		}
	}
	for k, v := range t.Features {
		resolved[k] = v
	}
	for k, v := range overrides {
		if IsKnownFeature(k) {
			resolved[k] = v
		}
	}
	return resolved, true
}

// TrialHook describes one trial offered by an upgrade hook, annotated for
// client display.
type TrialHook struct {
	TrialTierID  string `json:"trialTierId"`
	DisplayName  string `json:"displayName"`
	PaidTierName string `json:"paidTierName"`
}

// Hook schemes reference trial tier ids; display names are resolved from the
// catalog at lookup time.
var upgradeHookSchemes = map[string]map[string][]string{
	"standard": {
		"collaborators": {"business-trial"},
		"abTesting":     {"business-trial"},
		"environments":  {"business-trial"},
		"publishing":    {"pro-trial", "business-trial"},
	},
}

// ResolveTierHooks returns the upgrade hooks configured for a tier. For trial
// tiers the scheme of the underlying paid tier applies. Returns an empty map
// when no scheme is configured.
func ResolveTierHooks(tierID string) map[string][]TrialHook {
	hooks := map[string][]TrialHook{}
	t := Get(tierID)
	if t == nil {
		return hooks
	}
	scheme := t.UpgradeHookScheme
	if scheme == "" && t.IsTrial {
		if paid := Get(t.TrialTierOf); paid != nil {
			scheme = paid.UpgradeHookScheme
		}
	}
	entries, ok := upgradeHookSchemes[scheme]
	if !ok {
		return hooks
	}
	for name, trialIDs := range entries {
		annotated := make([]TrialHook, 0, len(trialIDs))
		for _, id := range trialIDs {
			trial := Get(id)
			if trial == nil {
				continue
			}
			paidName := ""
			if paid := Get(trial.TrialTierOf); paid != nil {
				paidName = paid.Name
			}
			annotated = append(annotated, TrialHook{
				TrialTierID:  id,
				DisplayName:  trial.Name,
				PaidTierName: paidName,
			})
		}
		hooks[name] = annotated
	}
	return hooks
}

// IsEligibleForTrial decides whether a project currently on currentTierID,
// with the given tier history, may start the trial. Re-entry while already on
// the trial is always allowed.
func IsEligibleForTrial(trialTierID, currentTierID string, pastTierIDs []string) bool {
	trial := Get(trialTierID)
	if trial == nil {
		return false
	}
	current := SafeTierID(currentTierID)
	if current == trialTierID {
		return true
	}
	open := false
	for _, id := range trial.OpenToTierIDs {
		if id == current {
			open = true
			break
		}
	}
	if !open {
		return false
	}
	for _, disqualifying := range trial.DisqualifyingPastTierIDs {
		for _, past := range pastTierIDs {
			if past == disqualifying {
				return false
			}
		}
	}
	return true
}

// TrialEligibility is one row of the trials listing.
type TrialEligibility struct {
	ID         string `json:"id"`
	PaidTierID string `json:"paidTierId"`
	Eligible   bool   `json:"eligible"`
}

// ListTrialsWithEligibility enumerates all trial tiers in catalog order with
// the eligibility verdict for the given project state.
func ListTrialsWithEligibility(currentTierID string, pastTierIDs []string) []TrialEligibility {
	var trials []TrialEligibility
	for _, t := range All() {
		if !t.IsTrial {
			continue
		}
		trials = append(trials, TrialEligibility{
			ID:         t.ID,
			PaidTierID: t.TrialTierOf,
			Eligible:   IsEligibleForTrial(t.ID, currentTierID, pastTierIDs),
		})
	}
	return trials
}

// PaidTierID returns the tier a trial converts to, or the tier itself for
// non-trials. Empty for unknown ids.
func PaidTierID(tierID string) string {
	t := Get(tierID)
	if t == nil {
		return ""
	}
	if t.IsTrial {
		return t.TrialTierOf
	}
	return t.ID
}
