package planner

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glr76/PlannyWeb/internal/store"
)

const maxCombinedYears = 2

var (
	selectionName = regexp.MustCompile(`(?i)^selections_(\d{4})\.txt$`)
	yearSeparator = regexp.MustCompile(`[,\s]+`)
)

// TextSource is the part of the store the selection helpers read from.
type TextSource interface {
	Lookup(ctx context.Context, path string) (store.Text, error)
	List(ctx context.Context, prefix string) ([]store.FileMeta, error)
}

func SelectionFile(year int) string {
	return fmt.Sprintf("selections_%d.txt", year)
}

// Years extracts the sorted, de-duplicated years of every
// selections_YYYY.txt file in files.
func Years(files []store.FileMeta) []int {
	years := make([]int, 0, len(files))
	for _, f := range files {
		m := selectionName.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		y, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		years = append(years, y)
	}
	slices.Sort(years)
	return slices.Compact(years)
}

// SuggestedPair prefers the current and next year when both exist, then
// the two most recent years, then the only one.
func SuggestedPair(years []int, now time.Time) []int {
	current := now.Year()
	if slices.Contains(years, current) && slices.Contains(years, current+1) {
		return []int{current, current + 1}
	}
	switch {
	case len(years) >= 2:
		return slices.Clone(years[len(years)-2:])
	case len(years) == 1:
		return []int{years[0]}
	default:
		return []int{}
	}
}

// ParseYears reads a list like "2025,2026" or "2025 2026", keeping the
// first two distinct integers and ignoring anything else.
func ParseYears(raw string) []int {
	var years []int
	for _, part := range yearSeparator.Split(strings.TrimSpace(raw), -1) {
		y, err := strconv.Atoi(part)
		if err != nil || slices.Contains(years, y) {
			continue
		}
		years = append(years, y)
		if len(years) == maxCombinedYears {
			break
		}
	}
	return years
}

type Selections struct {
	source TextSource
	now    func() time.Time
}

func New(source TextSource, now func() time.Time) *Selections {
	if now == nil {
		now = time.Now
	}
	return &Selections{source: source, now: now}
}

type YearsResult struct {
	Years         []int
	SuggestedPair []int
}

func (s *Selections) Years(ctx context.Context) (YearsResult, error) {
	files, err := s.source.List(ctx, "")
	if err != nil {
		return YearsResult{}, err
	}
	years := Years(files)
	return YearsResult{Years: years, SuggestedPair: SuggestedPair(years, s.now())}, nil
}

func (s *Selections) Get(ctx context.Context, year int) (store.Text, error) {
	return s.source.Lookup(ctx, SelectionFile(year))
}

// Combined concatenates the selection files for years with newlines and
// trims the result. Missing years are skipped. Files are fetched
// concurrently but joined in the order given.
func (s *Selections) Combined(ctx context.Context, years []int) (string, error) {
	chunks := make([]store.Text, len(years))
	g, gctx := errgroup.WithContext(ctx)
	for i, year := range years {
		g.Go(func() error {
			text, err := s.source.Lookup(gctx, SelectionFile(year))
			if err != nil {
				return err
			}
			chunks[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.Found {
			parts = append(parts, c.Content)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}
