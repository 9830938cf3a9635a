package tier

import "testing"

func TestResolveFeaturesUnknownTier(t *testing.T) {
	if _, ok := ResolveFeatures("does-not-exist", nil); ok {
		t.Fatalf("expected unknown tier id to resolve to nothing")
	}
}

func TestResolveFeaturesTrialInheritsPaidTier(t *testing.T) {
	features, ok := ResolveFeatures("business-trial", nil)
	if !ok {
		t.Fatalf("expected business-trial to resolve")
	}
	// Limits come from the underlying paid tier.
	if got := features.Int(FeatureCollaborators); got != 10 {
		t.Fatalf("collaborators = %d, want 10", got)
	}
	if !features.Bool(FeatureABTesting) {
		t.Fatalf("expected abTesting inherited from business")
	}
	// The trial's own declaration wins over the paid tier.
	if got := features.String(FeatureSupportAction); got != "standard" {
		t.Fatalf("supportAction = %q, want %q", got, "standard")
	}
}

func TestResolveFeaturesOverrideLayering(t *testing.T) {
	overrides := map[string]interface{}{
		FeatureCollaborators: nil, // explicit clear must be honored
		FeatureABTesting:     false,
		"retiredFeatureKey":  true, // not in the schema, must be dropped
	}
	features, ok := ResolveFeatures("business-trial", overrides)
	if !ok {
		t.Fatalf("expected business-trial to resolve")
	}
	if v, present := features[FeatureCollaborators]; !present || v != nil {
		t.Fatalf("expected collaborators override to be present and nil, got %v (present=%v)", v, present)
	}
	if features.Bool(FeatureABTesting) {
		t.Fatalf("expected abTesting override to win over the paid tier")
	}
	if _, present := features["retiredFeatureKey"]; present {
		t.Fatalf("unknown override key must not appear in resolved features")
	}
	if got := features.String(FeatureSupportAction); got != "standard" {
		t.Fatalf("supportAction = %q, want %q", got, "standard")
	}
}

func TestIsEligibleForTrialReflexive(t *testing.T) {
	// Already being on the trial keeps it available regardless of history.
	if !IsEligibleForTrial("business-trial", "business-trial", []string{"business"}) {
		t.Fatalf("expected re-entry on the active trial to be eligible")
	}
}

func TestIsEligibleForTrialAllowlist(t *testing.T) {
	if !IsEligibleForTrial("business-trial", "free", nil) {
		t.Fatalf("expected free tier to be open to business-trial")
	}
	if IsEligibleForTrial("business-trial", "enterprise", nil) {
		t.Fatalf("expected enterprise to be outside the business-trial allowlist")
	}
	if IsEligibleForTrial("unknown-trial", "free", nil) {
		t.Fatalf("expected unknown trial id to be ineligible")
	}
}

func TestIsEligibleForTrialDisqualifiedByHistory(t *testing.T) {
	if IsEligibleForTrial("business-trial", "free", []string{"business"}) {
		t.Fatalf("expected past business tier to disqualify the trial")
	}
	if IsEligibleForTrial("business-trial", "pro", []string{"business-trial"}) {
		t.Fatalf("expected a previously used trial to disqualify re-trialing")
	}
}

func TestListTrialsWithEligibility(t *testing.T) {
	trials := ListTrialsWithEligibility("free", []string{"pro"})
	if len(trials) != 2 {
		t.Fatalf("expected 2 trial tiers, got %d", len(trials))
	}
	if trials[0].ID != "pro-trial" || trials[1].ID != "business-trial" {
		t.Fatalf("expected catalog declaration order, got %q, %q", trials[0].ID, trials[1].ID)
	}
	if trials[0].Eligible {
		t.Fatalf("expected pro-trial to be disqualified by past pro tier")
	}
	if !trials[1].Eligible {
		t.Fatalf("expected business-trial to remain eligible")
	}
	if trials[1].PaidTierID != "business" {
		t.Fatalf("paid tier of business-trial = %q, want business", trials[1].PaidTierID)
	}
}

func TestResolveTierHooks(t *testing.T) {
	hooks := ResolveTierHooks("free")
	if len(hooks) == 0 {
		t.Fatalf("expected hooks for the free tier scheme")
	}
	collab, ok := hooks["collaborators"]
	if !ok || len(collab) != 1 {
		t.Fatalf("expected a collaborators hook with one trial, got %v", collab)
	}
	if collab[0].TrialTierID != "business-trial" || collab[0].PaidTierName != "Business" {
		t.Fatalf("unexpected hook annotation: %+v", collab[0])
	}

	// Trials without an own scheme use the underlying paid tier's scheme.
	if len(ResolveTierHooks("pro-trial")) == 0 {
		t.Fatalf("expected pro-trial to inherit the pro hook scheme")
	}
	if len(ResolveTierHooks("business")) != 0 {
		t.Fatalf("expected no hooks for a tier without a scheme")
	}
}

func TestSafeTierID(t *testing.T) {
	if got := SafeTierID(""); got != DefaultTierID {
		t.Fatalf("SafeTierID(\"\") = %q, want %q", got, DefaultTierID)
	}
	if got := SafeTierID("business"); got != "business" {
		t.Fatalf("SafeTierID(business) = %q", got)
	}
}

func TestCatalogInvariants(t *testing.T) {
	for _, tr := range All() {
		if tr.IsTrial {
			paid := Get(tr.TrialTierOf)
			if paid == nil || paid.IsTrial {
				t.Fatalf("trial %q must reference a non-trial paid tier", tr.ID)
			}
		}
		if tr.DowngradesTo != "" && Get(tr.DowngradesTo) == nil {
			t.Fatalf("tier %q downgrades to unknown tier %q", tr.ID, tr.DowngradesTo)
		}
	}
}
