// Package rules holds the ordered classification table that maps field signal
// text to a semantic category. Evaluation is first match wins, so the order of
// Table is part of its contract.
package rules

import (
	"regexp"
	"strings"
	"unicode"
)

// Category is the semantic kind of data a field expects.
type Category string

const (
	None Category = ""

	FirstName         Category = "first_name"
	LastName          Category = "last_name"
	FullName          Category = "full_name"
	Email             Category = "email"
	Phone             Category = "phone"
	Address           Category = "address"
	City              Category = "city"
	State             Category = "state"
	PostalCode        Category = "postal_code"
	Country           Category = "country"
	Company           Category = "company"
	JobTitle          Category = "job_title"
	LinkedIn          Category = "linkedin"
	GitHub            Category = "github"
	Website           Category = "website"
	Institution       Category = "institution"
	Degree            Category = "degree"
	FieldOfStudy      Category = "field_of_study"
	GraduationYear    Category = "graduation_year"
	ExperienceSummary Category = "experience_summary"
	EducationSummary  Category = "education_summary"
	Skills            Category = "skills"
	Languages         Category = "languages"
	Certifications    Category = "certifications"
	Summary           Category = "summary"
	CoverLetter       Category = "cover_letter"
	Salary            Category = "salary"
	WorkAuthorization Category = "work_authorization"
	Relocation        Category = "relocation"
	Date              Category = "date"
)

// Rule pairs a category with the predicate that selects it. A signal
// matching Exclude never satisfies the rule.
type Rule struct {
	Category Category
	Pattern  *regexp.Regexp
	Exclude  *regexp.Regexp
}

// Matches reports whether normalized signal text satisfies the rule.
func (r Rule) Matches(signal string) bool {
	if !r.Pattern.MatchString(signal) {
		return false
	}
	return r.Exclude == nil || !r.Exclude.MatchString(signal)
}

func rule(c Category, pattern string) Rule {
	return Rule{Category: c, Pattern: regexp.MustCompile(pattern)}
}

func ruleExcept(c Category, pattern, exclude string) Rule {
	r := rule(c, pattern)
	r.Exclude = regexp.MustCompile(exclude)
	return r
}

// Table is evaluated top to bottom against normalized signal text.
//
// Name parts come before contact fields and contact fields before everything
// else; the generic full name rule is last because "name" appears in the
// signals of many more specific fields (company name, institution name...).
// Account credentials such as "user name" or "login name" are not a person's name.
var Table = []Rule{
	rule(FirstName, `\bfirst ?name|\bfname\b|\bgiven ?name|\bforename`),
	rule(LastName, `\blast ?name|\blname\b|\bsurname|\bfamily ?name`),
	rule(Email, `\be ?mail|email`),
	rule(Phone, `phone|\bmobile|\btel\b|\bcell\b`),
	rule(LinkedIn, `linked ?in`),
	rule(GitHub, `git ?hub`),
	rule(Website, `website|\burl\b|portfolio|home ?page|personal ?site`),
	rule(GraduationYear, `graduat`),
	rule(Date, `\bdate\b|\bdob\b|birth|available ?from|availability`),
	rule(PostalCode, `\bzip|postal|post ?code`),
	rule(City, `\bcity\b|\btown\b`),
	rule(State, `\bstate\b|province|\bregion\b`),
	rule(Country, `countr`),
	rule(Address, `address|street|\baddr\b`),
	rule(WorkAuthorization, `authori[sz]|\bvisa\b|sponsor|right to work|eligib`),
	rule(Relocation, `relocat`),
	rule(Salary, `salary|compensation|pay expectation|desired pay`),
	rule(JobTitle, `job ?title|position|\btitle\b|\brole\b|designation|occupation`),
	rule(Company, `company|employer|organi[sz]ation|\bfirm\b`),
	rule(Institution, `institution|university|school|college`),
	rule(Degree, `degree|qualification|diploma`),
	rule(FieldOfStudy, `field ?of ?study|\bmajor\b|discipline`),
	rule(ExperienceSummary, `experience|employment history|work history`),
	rule(EducationSummary, `education|academic`),
	rule(Skills, `skill|competenc|abilities|expertise`),
	rule(Languages, `\blanguages?\b`),
	rule(Certifications, `certif|licen[cs]e`),
	rule(CoverLetter, `cover ?letter|motivation|why .*interested|additional info|\bmessage\b`),
	rule(Summary, `summary|about (me|you)|\bbio\b|objective|\bprofile\b`),
	ruleExcept(FullName, `full ?name|\bname\b`, `\buser ?name|\blogin\b|\baccount\b`),
}

// Normalize lowercases signal text and turns separators into single spaces so
// that first_name, first-name, firstName and "First Name" read alike.
func Normalize(signal string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '@' {
			return unicode.ToLower(r)
		}
		return ' '
	}, signal)
	return strings.Join(strings.Fields(mapped), " ")
}

// Classify returns the category of the first rule in Table whose predicate
// matches the signal text, or false when no rule matches.
func Classify(signal string) (Category, bool) {
	return ClassifyWith(Table, signal)
}

// ClassifyWith evaluates an explicit rule list in order.
func ClassifyWith(table []Rule, signal string) (Category, bool) {
	normalized := Normalize(signal)
	if normalized == "" {
		return None, false
	}
	for _, r := range table {
		if r.Matches(normalized) {
			return r.Category, true
		}
	}
	return None, false
}

// Categories lists every category in table order.
func Categories() []Category {
	out := make([]Category, 0, len(Table))
	for _, r := range Table {
		out = append(out, r.Category)
	}
	return out
}
