package profile

import (
	"regexp"
	"strings"
	"time"

	"github.com/xkilldash9x/cvfill/internal/autofill/rules"
)

// FieldContext carries the signals of the field being filled. Most categories
// ignore it; dates use it to tell a birth date from a start date.
type FieldContext struct {
	Name        string
	ID          string
	Label       string
	Placeholder string
}

// Strategy extracts a value from one profile shape.
type Strategy struct {
	// Source names where the strategy looks, e.g. "personal_info.email".
	Source  string
	Extract func(r *Record, f FieldContext) (string, bool)
}

// Chain is an ordered list of strategies; the first that yields a value wins.
type Chain []Strategy

func (c Chain) resolve(r *Record, f FieldContext) (string, string, bool) {
	for _, s := range c {
		if v, ok := s.Extract(r, f); ok {
			return v, s.Source, true
		}
	}
	return "", "", false
}

var (
	personalSections   = []string{"personal_info", "personalInfo", "personal", "contact_info", "contactInfo", ""}
	preferenceSections = []string{"preferences", "job_preferences", "jobPreferences", ""}
	experienceLists    = []string{"experience", "work_experience", "workExperience", "experiences", "employment"}
	educationLists     = []string{"education", "educations", "academic_history"}
)

// at reads a single dotted path.
func at(path string) Strategy {
	return Strategy{Source: path, Extract: func(r *Record, _ FieldContext) (string, bool) {
		return r.String(path)
	}}
}

func within(sections []string, keys ...string) Chain {
	var out Chain
	for _, sec := range sections {
		for _, k := range keys {
			if sec == "" {
				out = append(out, at(k))
				continue
			}
			out = append(out, at(sec+"."+k))
		}
	}
	return out
}

// personal looks keys up in every personal/contact section, then at the top level.
func personal(keys ...string) Chain { return within(personalSections, keys...) }

// preference looks keys up in the preference sections, then at the top level.
func preference(keys ...string) Chain { return within(preferenceSections, keys...) }

// firstEntry reads keys from the first (most recent) entry of a history list.
func firstEntry(lists []string, keys ...string) Chain {
	out := make(Chain, 0, len(lists))
	for _, list := range lists {
		list := list
		out = append(out, Strategy{
			Source: list + ".0." + keys[0],
			Extract: func(r *Record, _ FieldContext) (string, bool) {
				entries := r.List(list)
				if len(entries) == 0 {
					return "", false
				}
				entry, ok := entries[0].(map[string]any)
				if !ok {
					return "", false
				}
				return field(entry, keys...)
			},
		})
	}
	return out
}

// lastContact reads the last usable entry of a plural contact list. Entries
// are plain strings or objects; objects carrying a "type" must match kind.
func lastContact(kind string, valueKeys []string, lists ...string) Chain {
	var out Chain
	for _, sec := range personalSections {
		for _, list := range lists {
			path := list
			if sec != "" {
				path = sec + "." + list
			}
			out = append(out, Strategy{
				Source: path,
				Extract: func(r *Record, _ FieldContext) (string, bool) {
					entries := r.List(path)
					for i := len(entries) - 1; i >= 0; i-- {
						switch e := entries[i].(type) {
						case string:
							if s := strings.TrimSpace(e); s != "" {
								return s, true
							}
						case map[string]any:
							if t, ok := scalar(e["type"]); ok && !strings.EqualFold(t, kind) {
								continue
							}
							if v, ok := field(e, valueKeys...); ok {
								return v, true
							}
						}
					}
					return "", false
				},
			})
		}
	}
	return out
}

func fullNameChain() Chain {
	chain := personal("full_name", "fullName", "name")
	return append(chain, Strategy{
		Source: "first_name + last_name",
		Extract: func(r *Record, f FieldContext) (string, bool) {
			first, _, okFirst := personal("first_name", "firstName", "given_name").resolve(r, f)
			last, _, okLast := personal("last_name", "lastName", "surname", "family_name").resolve(r, f)
			if !okFirst && !okLast {
				return "", false
			}
			return strings.TrimSpace(first + " " + last), true
		},
	})
}

// splitName derives a name part from the full name: the first token, or all
// remaining tokens joined by a single space. A one-token name has no last part.
func splitName(last bool) Strategy {
	full := personal("full_name", "fullName", "name")
	return Strategy{
		Source: "full_name (split)",
		Extract: func(r *Record, f FieldContext) (string, bool) {
			name, _, ok := full.resolve(r, f)
			if !ok {
				return "", false
			}
			tokens := strings.Fields(name)
			if len(tokens) == 0 {
				return "", false
			}
			if !last {
				return tokens[0], true
			}
			rest := strings.Join(tokens[1:], " ")
			return rest, rest != ""
		},
	}
}

// joinEntry renders "<a><sep><b>" from the first history entry, or whichever
// half is present.
func joinEntry(source string, lists []string, aKeys, bKeys []string, sep string) Strategy {
	return Strategy{
		Source: source,
		Extract: func(r *Record, f FieldContext) (string, bool) {
			a, _, okA := firstEntry(lists, aKeys...).resolve(r, f)
			b, _, okB := firstEntry(lists, bKeys...).resolve(r, f)
			switch {
			case okA && okB:
				return a + sep + b, true
			case okA:
				return a, true
			case okB:
				return b, true
			}
			return "", false
		},
	}
}

// flatten joins a list of strings or objects with ", ". Objects contribute
// their items array when they have one (categorized skills), otherwise the
// first of nameKeys, decorated by detailKey in parentheses when present.
func flatten(source string, nameKeys []string, detailKey string) Strategy {
	return Strategy{
		Source: source,
		Extract: func(r *Record, _ FieldContext) (string, bool) {
			v, ok := r.Lookup(source)
			if !ok {
				return "", false
			}
			if s, ok := scalar(v); ok {
				return s, true
			}

			var parts []string
			seen := make(map[string]bool)
			add := func(s string) {
				key := strings.ToLower(s)
				if s == "" || seen[key] {
					return
				}
				seen[key] = true
				parts = append(parts, s)
			}

			var visit func(item any)
			visit = func(item any) {
				switch t := item.(type) {
				case []any:
					for _, e := range t {
						visit(e)
					}
				case map[string]any:
					if items, ok := t["items"]; ok {
						visit(items)
						return
					}
					name, ok := field(t, nameKeys...)
					if !ok {
						return
					}
					if detail, ok := scalar(t[detailKey]); ok && detailKey != "" {
						name += " (" + detail + ")"
					}
					add(name)
				default:
					if s, ok := scalar(t); ok {
						add(s)
					}
				}
			}
			visit(v)
			return strings.Join(parts, ", "), len(parts) > 0
		},
	}
}

func graduationYear() Strategy {
	year := regexp.MustCompile(`\b(19|20)\d{2}\b`)
	return Strategy{
		Source: "education.0.end_date (year)",
		Extract: func(r *Record, f FieldContext) (string, bool) {
			end, _, ok := firstEntry(educationLists, "end_date", "endDate", "graduation_date").resolve(r, f)
			if !ok {
				return "", false
			}
			y := year.FindString(end)
			return y, y != ""
		},
	}
}

type datePurpose int

const (
	dateUnspecified datePurpose = iota
	dateBirth
	dateAvailable
	dateStart
	dateEnd
)

var (
	birthPattern     = regexp.MustCompile(`birth|\bdob\b|\bbday\b`)
	availablePattern = regexp.MustCompile(`availab|earliest`)
	startPattern     = regexp.MustCompile(`\bstart|\bbegin|\bcommenc`)
	endPattern       = regexp.MustCompile(`\bend\b|\bfinish|\buntil\b`)
)

func purposeOf(f FieldContext) datePurpose {
	text := rules.Normalize(strings.Join([]string{f.Label, f.Name, f.ID, f.Placeholder}, " "))
	switch {
	case birthPattern.MatchString(text):
		return dateBirth
	case availablePattern.MatchString(text):
		return dateAvailable
	case startPattern.MatchString(text):
		return dateStart
	case endPattern.MatchString(text):
		return dateEnd
	}
	return dateUnspecified
}

// dateChain picks its source from the field's own text. A field that names a
// purpose the profile cannot answer gets no value; only a field with no
// recognizable purpose falls back to today's date.
func dateChain(now func() time.Time) Chain {
	birth := personal("date_of_birth", "dateOfBirth", "dob", "birth_date", "birthDate")
	available := preference("available_from", "availableFrom", "availability", "earliest_start_date")
	start := firstEntry(experienceLists, "start_date", "startDate", "from")
	end := firstEntry(experienceLists, "end_date", "endDate", "to")

	return Chain{{
		Source: "date (by field purpose)",
		Extract: func(r *Record, f FieldContext) (string, bool) {
			var v string
			var ok bool
			switch purposeOf(f) {
			case dateBirth:
				v, _, ok = birth.resolve(r, f)
			case dateAvailable:
				v, _, ok = available.resolve(r, f)
			case dateStart:
				v, _, ok = start.resolve(r, f)
			case dateEnd:
				v, _, ok = end.resolve(r, f)
			default:
				return now().Format("2006-01-02"), true
			}
			return v, ok
		},
	}}
}

func concat(chains ...Chain) Chain {
	var out Chain
	for _, c := range chains {
		out = append(out, c...)
	}
	return out
}

// defaultChains builds the fallback chain of every category.
func defaultChains(now func() time.Time) map[rules.Category]Chain {
	summary := personal("summary", "professional_summary", "professionalSummary", "about", "bio", "objective")

	return map[rules.Category]Chain{
		rules.FullName:  fullNameChain(),
		rules.FirstName: concat(personal("first_name", "firstName", "given_name", "givenName"), Chain{splitName(false)}),
		rules.LastName:  concat(personal("last_name", "lastName", "surname", "family_name", "familyName"), Chain{splitName(true)}),

		rules.Email: concat(
			personal("email", "email_address", "emailAddress"),
			lastContact("email", []string{"value", "address", "email"}, "emails", "email_addresses", "contacts", "contact_records"),
		),
		rules.Phone: concat(
			personal("phone", "phone_number", "phoneNumber", "mobile", "telephone"),
			lastContact("phone", []string{"value", "number", "phone"}, "phones", "phone_numbers", "contacts", "contact_records"),
		),

		rules.Address:    personal("address", "street_address", "streetAddress", "street", "address.street", "address.line1"),
		rules.City:       personal("city", "address.city", "location.city"),
		rules.State:      personal("state", "province", "region", "address.state", "address.province"),
		rules.PostalCode: personal("postal_code", "postalCode", "zip", "zip_code", "zipCode", "postcode", "address.postal_code", "address.zip"),
		rules.Country:    personal("country", "address.country", "location.country"),

		rules.Company:  concat(firstEntry(experienceLists, "company", "employer", "organization", "company_name"), personal("current_company", "company")),
		rules.JobTitle: concat(firstEntry(experienceLists, "job_title", "jobTitle", "title", "position", "role"), personal("job_title", "headline", "current_title")),

		rules.LinkedIn: personal("linkedin", "linkedin_url", "linkedIn", "linkedinUrl", "links.linkedin"),
		rules.GitHub:   personal("github", "github_url", "gitHub", "githubUrl", "links.github"),
		rules.Website:  personal("website", "portfolio", "url", "homepage", "links.website", "links.portfolio"),

		rules.Institution:    firstEntry(educationLists, "institution", "school", "university", "college"),
		rules.Degree:         firstEntry(educationLists, "degree", "qualification"),
		rules.FieldOfStudy:   firstEntry(educationLists, "field_of_study", "fieldOfStudy", "major"),
		rules.GraduationYear: concat(firstEntry(educationLists, "graduation_year", "graduationYear", "year"), Chain{graduationYear()}),

		rules.ExperienceSummary: {joinEntry("experience.0 (title at company)", experienceLists,
			[]string{"job_title", "jobTitle", "title", "position"}, []string{"company", "employer", "organization"}, " at ")},
		rules.EducationSummary: {joinEntry("education.0 (degree - institution)", educationLists,
			[]string{"degree", "qualification"}, []string{"institution", "school", "university"}, " - ")},

		rules.Skills:         {flatten("skills", []string{"name", "skill"}, ""), flatten("technical_skills", []string{"name", "skill"}, "")},
		rules.Languages:      {flatten("languages", []string{"language", "name"}, "proficiency")},
		rules.Certifications: {flatten("certifications", []string{"name", "title"}, "")},

		rules.Summary:     summary,
		rules.CoverLetter: concat(personal("cover_letter", "coverLetter", "motivation"), summary),

		rules.Salary:            preference("salary", "desired_salary", "expected_salary", "salary_expectation"),
		rules.WorkAuthorization: preference("work_authorization", "workAuthorization", "visa_status"),
		rules.Relocation:        preference("relocation", "willing_to_relocate", "willingToRelocate", "open_to_relocation"),

		rules.Date: dateChain(now),
	}
}
