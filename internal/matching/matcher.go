package matching

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/triage-scheduling/internal/apperr"
	"github.com/hackgods/triage-scheduling/internal/doctor"
	"github.com/hackgods/triage-scheduling/internal/triage"
)

var ErrNoAvailableDoctor = apperr.New(apperr.ErrNoAvailableDoctor, "no available doctor for the analysed symptoms")

// FamilyMedicine is tried after the knowledge base default.
const FamilyMedicine = "family_medicine"

// Selection is the doctor picked for a triage result.
type Selection struct {
	Doctor         doctor.Doctor `json:"doctor"`
	Specialization string        `json:"specialization"`
	Online         bool          `json:"online"`
	Fallback       bool          `json:"fallback"`
}

type Matcher struct {
	directory doctor.Directory
	fallbacks []string
	timeout   time.Duration
	logger    zerolog.Logger
}

type Option func(*Matcher)

// WithTimeout bounds every directory call.
func WithTimeout(d time.Duration) Option {
	return func(m *Matcher) { m.timeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// NewMatcher creates a matcher whose fallback categories are defaultSpec
// followed by family medicine.
func NewMatcher(directory doctor.Directory, defaultSpec string, opts ...Option) *Matcher {
	m := &Matcher{
		directory: directory,
		fallbacks: []string{defaultSpec, FamilyMedicine},
		timeout:   5 * time.Second,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match walks the ranked specializations of r, preferring online doctors and
// then any approved doctor, before trying the fallback categories.
func (m *Matcher) Match(ctx context.Context, r triage.Result) (*Selection, error) {
	tried := make(map[string]bool)

	for _, rec := range r.Recommendations {
		spec := strings.ToLower(rec.Specialization)
		if tried[spec] {
			continue
		}
		tried[spec] = true

		sel, err := m.matchSpecialization(ctx, spec)
		if err != nil {
			return nil, err
		}
		if sel != nil {
			sel.Fallback = r.Fallback
			return sel, nil
		}
	}

	for _, spec := range m.fallbacks {
		spec = strings.ToLower(spec)
		if spec == "" || tried[spec] {
			continue
		}
		tried[spec] = true

		sel, err := m.matchSpecialization(ctx, spec)
		if err != nil {
			return nil, err
		}
		if sel != nil {
			sel.Fallback = true
			return sel, nil
		}
	}

	m.logger.Info().
		Strs("specializations", keys(tried)).
		Msg("no doctor available")
	return nil, ErrNoAvailableDoctor
}

func (m *Matcher) matchSpecialization(ctx context.Context, spec string) (*Selection, error) {
	for _, onlineOnly := range []bool{true, false} {
		doctors, err := m.find(ctx, doctor.Query{
			Specialization: spec,
			ApprovedOnly:   true,
			OnlineOnly:     onlineOnly,
		})
		if err != nil {
			return nil, err
		}

		if best, ok := pickBest(doctors); ok {
			return &Selection{
				Doctor:         best,
				Specialization: spec,
				Online:         best.IsOnline,
			}, nil
		}
	}
	return nil, nil
}

func (m *Matcher) find(ctx context.Context, q doctor.Query) ([]doctor.Doctor, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	doctors, err := m.directory.FindBySpecialization(ctx, q)
	if err != nil {
		return nil, apperr.Unavailable("find doctors", err)
	}
	return doctors, nil
}

// pickBest re-applies the approval filter and the rating order so the result
// does not depend on the directory honouring them.
func pickBest(doctors []doctor.Doctor) (doctor.Doctor, bool) {
	var (
		best  doctor.Doctor
		found bool
	)
	for _, d := range doctors {
		if !d.Approved() {
			continue
		}
		if !found || doctor.Less(d, best) {
			best = d
			found = true
		}
	}
	return best, found
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
