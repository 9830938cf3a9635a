package models

import (
	"encoding/json"
	"time"
)

// SplitTest is an A/B test provisioned over project environments. Variants
// are stored as a JSON array of {"environment": name} documents.
type SplitTest struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;index" json:"project_id"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	Status    string    `gorm:"type:varchar(50);default:''" json:"status"`
	Variants  JSON      `gorm:"type:text" json:"variants"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SplitTestVariant is one arm of a split test.
type SplitTestVariant struct {
	Environment string `json:"environment"`
}

// VariantList decodes the stored variants document.
func (st *SplitTest) VariantList() []SplitTestVariant {
	if len(st.Variants) == 0 {
		return nil
	}
	var variants []SplitTestVariant
	if err := json.Unmarshal(st.Variants, &variants); err != nil {
		return nil
	}
	return variants
}

// MatchesEnvironmentName reports whether the variant list is exactly the
// single variant for the given environment. Multi-variant tests never match,
// matching the historical lookup behavior clients rely on.
func (st *SplitTest) MatchesEnvironmentName(name string) bool {
	variants := st.VariantList()
	return len(variants) == 1 && variants[0].Environment == name
}
