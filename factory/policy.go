/*
Package factory builds escalation policies from configuration files.

PURPOSE:
  Converts TOML or JSON policy definitions into discipline.Policy values.
  Operations can tune expiry periods, thresholds and the leadership rules
  without a code change; the engine only ever sees the validated struct.

FILE FORMAT (TOML):
  report_expiry_days        = 180
  week_threshold            = 2
  counting_mode             = "total"      # or "consecutive"
  action_window_days        = 7
  coaching_counts_as_action = true

  [expiry]                  # days, 0 = never expires
  coaching = 0
  verbal   = 90
  written  = 180

  [thresholds.QA]
  low      = "85"
  critical = "75"

  [thresholds.Production]
  low      = "90"
  critical = "80"

  The same keys are accepted as JSON. Missing keys keep their default;
  unknown keys are rejected so a typo never silently falls back.

USAGE:
  policy, err := factory.LoadPolicyFile("policy.toml")
  policy, err := factory.ParsePolicyJSON(body)
  policy := factory.DefaultPolicy()

SEE ALSO:
  - discipline/policy.go: Policy type and Validate
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/deadlyrat/qperform-server-dev/discipline"
)

// =============================================================================
// FILE SCHEMA TYPES
// =============================================================================

// PolicyFile is the on-disk representation of a policy.
type PolicyFile struct {
	Expiry                 ExpiryFile                `toml:"expiry" json:"expiry"`
	ReportExpiryDays       int                       `toml:"report_expiry_days" json:"report_expiry_days"`
	WeekThreshold          int                       `toml:"week_threshold" json:"week_threshold"`
	CountingMode           string                    `toml:"counting_mode" json:"counting_mode"`
	ActionWindowDays       int                       `toml:"action_window_days" json:"action_window_days"`
	CoachingCountsAsAction bool                      `toml:"coaching_counts_as_action" json:"coaching_counts_as_action"`
	Thresholds             map[string]ThresholdsFile `toml:"thresholds" json:"thresholds"`
}

// ExpiryFile holds per-kind expiry in days.
type ExpiryFile struct {
	Coaching int `toml:"coaching" json:"coaching"`
	Verbal   int `toml:"verbal" json:"verbal"`
	Written  int `toml:"written" json:"written"`
}

// ThresholdsFile holds score cut-offs. Values may be quoted ("84.5") or bare numbers.
type ThresholdsFile struct {
	Low      decimal.Decimal `toml:"low" json:"low"`
	Critical decimal.Decimal `toml:"critical" json:"critical"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// DefaultPolicy returns the policy used when no file is configured.
func DefaultPolicy() discipline.Policy {
	p, err := DefaultPolicyFile().Policy()
	if err != nil {
		panic(fmt.Sprintf("default policy invalid: %v", err))
	}
	return p
}

// DefaultPolicyFile returns the defaults in file form.
func DefaultPolicyFile() *PolicyFile {
	return &PolicyFile{
		Expiry:                 ExpiryFile{Coaching: 0, Verbal: 90, Written: 180},
		ReportExpiryDays:       180,
		WeekThreshold:          2,
		CountingMode:           string(discipline.CountTotal),
		ActionWindowDays:       7,
		CoachingCountsAsAction: true,
		Thresholds: map[string]ThresholdsFile{
			string(discipline.MetricQA):         {Low: decimal.NewFromInt(85), Critical: decimal.NewFromInt(75)},
			string(discipline.MetricProduction): {Low: decimal.NewFromInt(90), Critical: decimal.NewFromInt(80)},
		},
	}
}

// =============================================================================
// PARSING
// =============================================================================

// LoadPolicyFile reads a policy from disk. The extension selects the format;
// anything other than .json is read as TOML.
func LoadPolicyFile(path string) (discipline.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return discipline.Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParsePolicyJSON(data)
	}
	return ParsePolicyTOML(data)
}

// ParsePolicyTOML decodes a TOML policy on top of the defaults.
func ParsePolicyTOML(data []byte) (discipline.Policy, error) {
	pf := DefaultPolicyFile()
	md, err := toml.Decode(string(data), pf)
	if err != nil {
		return discipline.Policy{}, fmt.Errorf("failed to parse policy TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return discipline.Policy{}, &discipline.PolicyError{Field: keys[0], Reason: "unknown key"}
	}
	return pf.Policy()
}

// ParsePolicyJSON decodes a JSON policy on top of the defaults.
func ParsePolicyJSON(data []byte) (discipline.Policy, error) {
	pf := DefaultPolicyFile()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(pf); err != nil {
		return discipline.Policy{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return pf.Policy()
}

// Policy converts the file form into a validated discipline.Policy.
func (pf *PolicyFile) Policy() (discipline.Policy, error) {
	p := discipline.Policy{
		Expiry: map[discipline.WarningKind]int{
			discipline.KindCoaching: pf.Expiry.Coaching,
			discipline.KindVerbal:   pf.Expiry.Verbal,
			discipline.KindWritten:  pf.Expiry.Written,
		},
		ReportExpiryDays:       pf.ReportExpiryDays,
		WeekThreshold:          pf.WeekThreshold,
		CountingMode:           discipline.CountingMode(pf.CountingMode),
		ActionWindowDays:       pf.ActionWindowDays,
		CoachingCountsAsAction: pf.CoachingCountsAsAction,
		Thresholds:             make(map[discipline.MetricType]discipline.Thresholds, len(pf.Thresholds)),
	}
	for metric, th := range pf.Thresholds {
		if th.Low.IsNegative() || th.Critical.IsNegative() {
			return discipline.Policy{}, &discipline.PolicyError{Field: "thresholds." + metric, Reason: "must not be negative"}
		}
		p.Thresholds[discipline.MetricType(metric)] = discipline.Thresholds{Low: th.Low, Critical: th.Critical}
	}
	if err := p.Validate(); err != nil {
		return discipline.Policy{}, err
	}
	return p, nil
}

// =============================================================================
// ENCODING
// =============================================================================

// FileFromPolicy converts a policy back into file form.
func FileFromPolicy(p discipline.Policy) *PolicyFile {
	pf := &PolicyFile{
		Expiry: ExpiryFile{
			Coaching: p.Expiry[discipline.KindCoaching],
			Verbal:   p.Expiry[discipline.KindVerbal],
			Written:  p.Expiry[discipline.KindWritten],
		},
		ReportExpiryDays:       p.ReportExpiryDays,
		WeekThreshold:          p.WeekThreshold,
		CountingMode:           string(p.CountingMode),
		ActionWindowDays:       p.ActionWindowDays,
		CoachingCountsAsAction: p.CoachingCountsAsAction,
		Thresholds:             make(map[string]ThresholdsFile, len(p.Thresholds)),
	}
	for metric, th := range p.Thresholds {
		pf.Thresholds[string(metric)] = ThresholdsFile{Low: th.Low, Critical: th.Critical}
	}
	return pf
}

// WritePolicyTOML encodes the policy as TOML.
func WritePolicyTOML(w io.Writer, p discipline.Policy) error {
	return toml.NewEncoder(w).Encode(FileFromPolicy(p))
}
