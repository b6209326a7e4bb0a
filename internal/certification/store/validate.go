package store

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
)

const (
	maxTextLen        = 256
	maxDescriptionLen = 4096
	maxCertifications = 32
	harvestDateLayout = "2006-01-02"
)

// normalize trims and checks a creation request, returning the canonical
// immutable fields. Every offending field is reported.
func normalize(in model.RecordInput) (model.RecordInput, model.Category, error) {
	ve := &model.ValidationError{}

	out := model.RecordInput{
		ProductName: strings.TrimSpace(in.ProductName),
		BatchSize:   strings.TrimSpace(in.BatchSize),
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		HarvestDate: strings.TrimSpace(in.HarvestDate),
	}

	for _, f := range []struct{ field, value string }{
		{"product_name", out.ProductName},
		{"batch_size", out.BatchSize},
		{"description", out.Description},
		{"location", out.Location},
		{"harvest_date", out.HarvestDate},
	} {
		if !utf8.ValidString(f.value) {
			ve.Add(f.field, "must be valid UTF-8")
		}
	}

	required := []struct{ field, value string }{
		{"product_name", out.ProductName},
		{"location", out.Location},
		{"harvest_date", out.HarvestDate},
	}
	for _, r := range required {
		if r.value == "" {
			ve.Add(r.field, "is required")
		}
	}
	for _, f := range []struct{ field, value string }{
		{"product_name", out.ProductName},
		{"batch_size", out.BatchSize},
		{"location", out.Location},
	} {
		if len(f.value) > maxTextLen {
			ve.Add(f.field, fmt.Sprintf("must be at most %d bytes", maxTextLen))
		}
	}
	if len(out.Description) > maxDescriptionLen {
		ve.Add("description", fmt.Sprintf("must be at most %d bytes", maxDescriptionLen))
	}

	if out.HarvestDate != "" {
		if _, err := time.Parse(harvestDateLayout, out.HarvestDate); err != nil {
			ve.Add("harvest_date", "must be a date in YYYY-MM-DD form")
		}
	}

	category, err := model.ParseCategory(in.Category)
	if err != nil {
		ve.Add("category", err.Error())
	}
	out.Category = string(category)

	seen := make(map[string]bool, len(in.Certifications))
	certs := make([]string, 0, len(in.Certifications))
	for i, c := range in.Certifications {
		c = strings.TrimSpace(c)
		if c == "" {
			ve.Add(fmt.Sprintf("certifications[%d]", i), "must not be empty")
			continue
		}
		if !utf8.ValidString(c) {
			ve.Add(fmt.Sprintf("certifications[%d]", i), "must be valid UTF-8")
			continue
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		certs = append(certs, c)
	}
	if len(certs) > maxCertifications {
		ve.Add("certifications", fmt.Sprintf("at most %d labels", maxCertifications))
	}
	sort.Strings(certs)
	out.Certifications = certs

	return out, category, ve.OrNil()
}
