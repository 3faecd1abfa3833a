package scoring

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/northstar-backend/internal/platform/envutil"
)

// Weights are the tunable constants of the scoring model.
type Weights struct {
	BaselineIncrement     float64       `yaml:"baseline_increment"`
	FirstReviewMultiplier float64       `yaml:"first_review_multiplier"`
	ApprovalBonus         float64       `yaml:"approval_bonus"`
	CyclePenalty          float64       `yaml:"cycle_penalty"`
	MajorReworkPenalty    float64       `yaml:"major_rework_penalty"`
	NitPenalty            float64       `yaml:"nit_penalty"`
	TimeToMergeThreshold  time.Duration `yaml:"time_to_merge_threshold"`
	TimeToMergeBonus      float64       `yaml:"time_to_merge_bonus"`
	TimeToMergePenalty    float64       `yaml:"time_to_merge_penalty"`
	PeerCreditValue       float64       `yaml:"peer_credit_value"`
	PeerCreditWindow      time.Duration `yaml:"peer_credit_window"`
	PeerCreditCap         int           `yaml:"peer_credit_cap"`
	DefaultConfidence     float64       `yaml:"default_confidence"`
	EnableReviewSignals   bool          `yaml:"enable_review_signals"`
}

func DefaultWeights() Weights {
	return Weights{
		BaselineIncrement:     1.0,
		FirstReviewMultiplier: 1.0,
		ApprovalBonus:         0.3,
		CyclePenalty:          0.3,
		MajorReworkPenalty:    0.5,
		NitPenalty:            0.1,
		TimeToMergeThreshold:  24 * time.Hour,
		TimeToMergeBonus:      0.1,
		TimeToMergePenalty:    0.2,
		PeerCreditValue:       0.2,
		PeerCreditWindow:      14 * 24 * time.Hour,
		PeerCreditCap:         10,
		DefaultConfidence:     0.7,
		EnableReviewSignals:   true,
	}
}

// PeerCreditLimit is the most credit one reviewer may collect per window.
func (w Weights) PeerCreditLimit() float64 {
	return w.PeerCreditValue * float64(w.PeerCreditCap)
}

// LoadWeights starts from the defaults, applies the YAML file named by
// SCORING_WEIGHTS_FILE when set, then SKILL_* environment overrides.
func LoadWeights() (Weights, error) {
	w := DefaultWeights()
	if path := envutil.String("SCORING_WEIGHTS_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Weights{}, fmt.Errorf("read scoring weights %s: %w", path, err)
		}
		if err := w.applyYAML(raw); err != nil {
			return Weights{}, fmt.Errorf("parse scoring weights %s: %w", path, err)
		}
	}
	w.applyEnv()
	return w, w.Validate()
}

func (w *Weights) applyYAML(raw []byte) error {
	if strings.TrimSpace(string(raw)) == "" {
		return nil
	}
	return yaml.Unmarshal(raw, w)
}

func (w *Weights) applyEnv() {
	w.BaselineIncrement = envutil.Float("SKILL_BASELINE_INCREMENT", w.BaselineIncrement)
	w.FirstReviewMultiplier = envutil.Float("SKILL_FIRST_REVIEW_MULTIPLIER", w.FirstReviewMultiplier)
	w.ApprovalBonus = envutil.Float("SKILL_APPROVAL_BONUS", w.ApprovalBonus)
	w.CyclePenalty = envutil.Float("SKILL_CYCLE_PENALTY", w.CyclePenalty)
	w.MajorReworkPenalty = envutil.Float("SKILL_MAJOR_REWORK_PENALTY", w.MajorReworkPenalty)
	w.NitPenalty = envutil.Float("SKILL_NIT_PENALTY", w.NitPenalty)
	w.TimeToMergeThreshold = envutil.Duration("SKILL_TIME_TO_MERGE_THRESHOLD", w.TimeToMergeThreshold)
	w.TimeToMergeBonus = envutil.Float("SKILL_TIME_TO_MERGE_BONUS", w.TimeToMergeBonus)
	w.TimeToMergePenalty = envutil.Float("SKILL_TIME_TO_MERGE_PENALTY", w.TimeToMergePenalty)
	w.PeerCreditValue = envutil.Float("SKILL_PEER_CREDIT_VALUE", w.PeerCreditValue)
	w.PeerCreditWindow = envutil.Duration("SKILL_PEER_CREDIT_WINDOW", w.PeerCreditWindow)
	w.PeerCreditCap = envutil.Int("SKILL_PEER_CREDIT_CAP", w.PeerCreditCap)
	w.DefaultConfidence = envutil.Float("SKILL_CONFIDENCE_DEFAULT", w.DefaultConfidence)
	w.EnableReviewSignals = envutil.Bool("SKILL_ENABLE_REVIEW_SIGNALS", w.EnableReviewSignals)
}

func (w Weights) Validate() error {
	switch {
	case w.PeerCreditCap < 0:
		return fmt.Errorf("peer_credit_cap must be >= 0, got %d", w.PeerCreditCap)
	case w.PeerCreditWindow <= 0:
		return fmt.Errorf("peer_credit_window must be positive, got %s", w.PeerCreditWindow)
	case w.TimeToMergeThreshold < 0:
		return fmt.Errorf("time_to_merge_threshold must be >= 0, got %s", w.TimeToMergeThreshold)
	case w.DefaultConfidence < 0 || w.DefaultConfidence > 1:
		return fmt.Errorf("default_confidence must be within [0,1], got %v", w.DefaultConfidence)
	}
	return nil
}
