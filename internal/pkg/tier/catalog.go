package tier

// Feature keys known to the platform. Override maps are sanitized against this
// schema so retired or misspelled keys in stored documents never leak into the
// resolved feature set.
const (
	FeatureCollaborators          = "collaborators"
	FeatureViewersCollaborators   = "viewersCollaborators"
	FeatureEnvironments           = "environments"
	FeatureCollaboratorRoles      = "collaboratorRoles"
	FeatureHasViewerRole          = "hasViewerRole"
	FeatureABTesting              = "abTesting"
	FeatureScheduledPublishing    = "scheduledPublishing"
	FeatureCustomDomains          = "customDomains"
	FeatureContainerMaxInactivity = "containerMaxInactivityTimeInMinutes"
	FeatureSupportAction          = "supportAction"
)

// DefaultTierID is the tier assumed for projects with no stored tier id.
const DefaultTierID = "free"

var featureSchema = map[string]struct{}{
	FeatureCollaborators:          {},
	FeatureViewersCollaborators:   {},
	FeatureEnvironments:           {},
	FeatureCollaboratorRoles:      {},
	FeatureHasViewerRole:          {},
	FeatureABTesting:              {},
	FeatureScheduledPublishing:    {},
	FeatureCustomDomains:          {},
	FeatureContainerMaxInactivity: {},
	FeatureSupportAction:          {},
}

// FeatureMap holds resolved feature values: boolean flags, numeric limits and
// the supportAction string. Values may be nil when an override explicitly
// cleared a feature.
type FeatureMap map[string]interface{}

// Bool returns the feature as a truthy flag. Missing keys, nil, false and
// zero values are all false.
func (f FeatureMap) Bool(key string) bool {
	if f == nil {
		return false
	}
	return truthy(f[key])
}

// Int returns a numeric limit, or 0 when missing or non-numeric.
func (f FeatureMap) Int(key string) int {
	if f == nil {
		return 0
	}
	switch v := f[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// String returns a string-valued feature such as supportAction.
func (f FeatureMap) String(key string) string {
	if f == nil {
		return ""
	}
	if s, ok := f[key].(string); ok {
		return s
	}
	return ""
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}

// Tier describes one customer tier from the static catalog.
type Tier struct {
	ID                       string
	Name                     string
	IsFree                   bool
	IsTrial                  bool
	DowngradesTo             string
	TrialTierOf              string
	TrialDays                int
	OpenToTierIDs            []string
	DisqualifyingPastTierIDs []string
	Features                 FeatureMap
	UpgradeHookScheme        string
}

// The catalog is static configuration. Order matters: trial listings are
// returned in declaration order.
var catalog = []Tier{
	{
		ID:     "free",
		Name:   "Free",
		IsFree: true,
		Features: FeatureMap{
			FeatureCollaborators:          0,
			FeatureViewersCollaborators:   0,
			FeatureEnvironments:           1,
			FeatureCollaboratorRoles:      false,
			FeatureHasViewerRole:          false,
			FeatureABTesting:              false,
			FeatureScheduledPublishing:    false,
			FeatureCustomDomains:          false,
			FeatureContainerMaxInactivity: 30,
			FeatureSupportAction:          "community",
		},
		UpgradeHookScheme: "standard",
	},
	{
		ID:           "pro",
		Name:         "Pro",
		DowngradesTo: "free",
		Features: FeatureMap{
			FeatureCollaborators:          4,
			FeatureViewersCollaborators:   0,
			FeatureEnvironments:           1,
			FeatureCollaboratorRoles:      false,
			FeatureHasViewerRole:          false,
			FeatureABTesting:              false,
			FeatureScheduledPublishing:    true,
			FeatureCustomDomains:          true,
			FeatureContainerMaxInactivity: 60,
			FeatureSupportAction:          "standard",
		},
		UpgradeHookScheme: "standard",
	},
	{
		ID:                       "pro-trial",
		Name:                     "Pro Trial",
		IsTrial:                  true,
		TrialTierOf:              "pro",
		TrialDays:                7,
		DowngradesTo:             "free",
		OpenToTierIDs:            []string{"free"},
		DisqualifyingPastTierIDs: []string{"pro", "pro-trial", "business", "business-trial"},
		Features:                 FeatureMap{},
	},
	{
		ID:           "business",
		Name:         "Business",
		DowngradesTo: "free",
		Features: FeatureMap{
			FeatureCollaborators:          10,
			FeatureViewersCollaborators:   10,
			FeatureEnvironments:           3,
			FeatureCollaboratorRoles:      true,
			FeatureHasViewerRole:          true,
			FeatureABTesting:              true,
			FeatureScheduledPublishing:    true,
			FeatureCustomDomains:          true,
			FeatureContainerMaxInactivity: 240,
			FeatureSupportAction:          "priority",
		},
	},
	{
		ID:                       "business-trial",
		Name:                     "Business Trial",
		IsTrial:                  true,
		TrialTierOf:              "business",
		TrialDays:                14,
		DowngradesTo:             "free",
		OpenToTierIDs:            []string{"free", "pro"},
		DisqualifyingPastTierIDs: []string{"business", "business-trial"},
		// Trials run with the paid tier's features except for downgraded support.
		Features: FeatureMap{
			FeatureSupportAction: "standard",
		},
	},
	{
		ID:           "enterprise",
		Name:         "Enterprise",
		DowngradesTo: "business",
		Features: FeatureMap{
			FeatureCollaborators:          50,
			FeatureViewersCollaborators:   100,
			FeatureEnvironments:           10,
			FeatureCollaboratorRoles:      true,
			FeatureHasViewerRole:          true,
			FeatureABTesting:              true,
			FeatureScheduledPublishing:    true,
			FeatureCustomDomains:          true,
			FeatureContainerMaxInactivity: 1440,
			FeatureSupportAction:          "dedicated",
		},
	},
}

var catalogByID = func() map[string]*Tier {
	m := make(map[string]*Tier, len(catalog))
	for i := range catalog {
		m[catalog[i].ID] = &catalog[i]
	}
	return m
}()

// Get returns the tier for an id, or nil if the id is not in the catalog.
func Get(id string) *Tier {
	return catalogByID[id]
}

// All returns the catalog in declaration order.
func All() []Tier {
	return catalog
}

// SafeTierID maps an empty tier id to the process-wide default.
func SafeTierID(tierID string) string {
	if tierID == "" {
		return DefaultTierID
	}
	return tierID
}

// IsKnownFeature reports whether key is part of the feature schema.
func IsKnownFeature(key string) bool {
	_, ok := featureSchema[key]
	return ok
}
