package services

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Finding severities.
const (
	SeverityCritical    = "critical"
	SeverityAutoFixable = "autoFixable"
)

// Finding is one detected duplication. Findings are recomputed on every run
// and never persisted.
type Finding struct {
	EntityType     string `json:"entity_type"` // account | school | class | student | staff
	ConflictField  string `json:"conflict_field"`
	ConflictValue  string `json:"conflict_value"`
	ConflictingIDs []uint `json:"conflicting_ids"`
	Severity       string `json:"severity"`
	ProposedFix    string `json:"proposed_fix,omitempty"`
}

// AnalysisSummary aggregates one audit run.
type AnalysisSummary struct {
	TotalDuplicates int            `json:"total_duplicates"`
	Critical        int            `json:"critical"`
	AutoFixable     int            `json:"auto_fixable"`
	ByCategory      map[string]int `json:"by_category"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// Analysis is the full result of one scan.
type Analysis struct {
	Findings []Finding       `json:"findings"`
	Summary  AnalysisSummary `json:"summary"`
}

// FixResult reports what AutoFix changed.
type FixResult struct {
	Fixed   int            `json:"fixed"`
	Details map[string]int `json:"details"`
	Errors  []string       `json:"errors,omitempty"`
}

// DuplicationAudit scans the persisted dataset for duplicate identities,
// decoupled from the request-time locking path. Critical findings are only
// reported; auto-fixable ones can be resolved by renaming, clearing a
// non-unique secondary field, or relinking. Nothing is ever deleted.
type DuplicationAudit struct {
	store AuditStore
}

// NewDuplicationAudit wires the audit to its read/fix store.
func NewDuplicationAudit(store AuditStore) *DuplicationAudit {
	return &DuplicationAudit{store: store}
}

// Analyze runs the full five-family scan.
func (a *DuplicationAudit) Analyze() (*Analysis, error) {
	var findings []Finding

	accountFindings, err := a.analyzeAccounts()
	if err != nil {
		return nil, err
	}
	findings = append(findings, accountFindings...)

	schoolFindings, err := a.analyzeSchools()
	if err != nil {
		return nil, err
	}
	findings = append(findings, schoolFindings...)

	classFindings, err := a.analyzeClasses()
	if err != nil {
		return nil, err
	}
	findings = append(findings, classFindings...)

	studentFindings, err := a.analyzeStudents()
	if err != nil {
		return nil, err
	}
	findings = append(findings, studentFindings...)

	staffFindings, err := a.analyzeStaff()
	if err != nil {
		return nil, err
	}
	findings = append(findings, staffFindings...)

	summary := AnalysisSummary{
		ByCategory:  make(map[string]int),
		GeneratedAt: time.Now(),
	}
	for _, f := range findings {
		summary.TotalDuplicates++
		summary.ByCategory[f.EntityType+"."+f.ConflictField]++
		switch f.Severity {
		case SeverityCritical:
			summary.Critical++
		case SeverityAutoFixable:
			summary.AutoFixable++
		}
	}

	log.Printf("[audit] analysis complete: %d duplicates (%d critical, %d auto-fixable)",
		summary.TotalDuplicates, summary.Critical, summary.AutoFixable)

	return &Analysis{Findings: findings, Summary: summary}, nil
}

func (a *DuplicationAudit) analyzeAccounts() ([]Finding, error) {
	accounts, err := a.store.ListAccounts()
	if err != nil {
		return nil, err
	}

	byEmail := map[string][]uint{}
	byUsername := map[string][]uint{}
	byPhone := map[string][]uint{}
	for _, acc := range accounts {
		if acc.Email != "" {
			byEmail[strings.ToLower(acc.Email)] = append(byEmail[strings.ToLower(acc.Email)], acc.ID)
		}
		if acc.Username != "" {
			byUsername[acc.Username] = append(byUsername[acc.Username], acc.ID)
		}
		if acc.Phone != "" {
			byPhone[acc.Phone] = append(byPhone[acc.Phone], acc.ID)
		}
	}

	var findings []Finding
	// Two accounts sharing an email is an identity collision: manual merge.
	findings = append(findings, groupFindings("account", "email", byEmail, SeverityCritical,
		"merge accounts manually")...)
	findings = append(findings, groupFindings("account", "username", byUsername, SeverityAutoFixable,
		"suffix duplicate usernames")...)
	findings = append(findings, groupFindings("account", "phone", byPhone, SeverityAutoFixable,
		"clear phone on all but the newest account")...)
	return findings, nil
}

func (a *DuplicationAudit) analyzeSchools() ([]Finding, error) {
	schools, err := a.store.ListSchools()
	if err != nil {
		return nil, err
	}

	byCode := map[string][]uint{}
	byName := map[string][]uint{}
	for _, sc := range schools {
		if sc.Code != "" {
			byCode[sc.Code] = append(byCode[sc.Code], sc.ID)
		}
		byName[strings.ToLower(sc.Name)] = append(byName[strings.ToLower(sc.Name)], sc.ID)
	}

	var findings []Finding
	findings = append(findings, groupFindings("school", "code", byCode, SeverityCritical,
		"resolve school code conflict manually")...)
	findings = append(findings, groupFindings("school", "name", byName, SeverityAutoFixable,
		"append region to duplicate school names")...)
	return findings, nil
}

func (a *DuplicationAudit) analyzeClasses() ([]Finding, error) {
	classes, err := a.store.ListClasses()
	if err != nil {
		return nil, err
	}

	byKey := map[string][]uint{}
	for _, cl := range classes {
		key := fmt.Sprintf("%d:%s:%s", cl.SchoolID, strings.ToLower(cl.Name), cl.Level)
		byKey[key] = append(byKey[key], cl.ID)
	}

	// Same name+level inside one school: students may be split across the
	// copies, so consolidation needs a human.
	return groupFindings("class", "name", byKey, SeverityCritical,
		"consolidate duplicate classes manually"), nil
}

func (a *DuplicationAudit) analyzeStudents() ([]Finding, error) {
	students, err := a.store.ListStudents()
	if err != nil {
		return nil, err
	}

	byEmail := map[string][]uint{}
	byRoll := map[string][]uint{}
	for _, st := range students {
		if st.Email != "" {
			key := fmt.Sprintf("%s:%d", strings.ToLower(st.Email), st.SchoolID)
			byEmail[key] = append(byEmail[key], st.ID)
		}
		if st.RollNumber != "" {
			key := fmt.Sprintf("%s:%d", st.RollNumber, st.SchoolID)
			byRoll[key] = append(byRoll[key], st.ID)
		}
	}

	var findings []Finding
	findings = append(findings, groupFindings("student", "email", byEmail, SeverityCritical,
		"merge student records manually")...)
	findings = append(findings, groupFindings("student", "roll_number", byRoll, SeverityCritical,
		"reassign roll numbers manually")...)
	return findings, nil
}

func (a *DuplicationAudit) analyzeStaff() ([]Finding, error) {
	staff, err := a.store.ListStaff()
	if err != nil {
		return nil, err
	}

	byEmployeeID := map[string][]uint{}
	byIdentity := map[string][]uint{}      // email -> staff ids
	identitySchools := map[string][]uint{} // email -> distinct school ids
	for _, st := range staff {
		if st.EmployeeID != "" {
			byEmployeeID[st.EmployeeID] = append(byEmployeeID[st.EmployeeID], st.ID)
		}
		if st.Email != "" {
			key := strings.ToLower(st.Email)
			byIdentity[key] = append(byIdentity[key], st.ID)
			identitySchools[key] = append(identitySchools[key], st.SchoolID)
		}
	}

	var findings []Finding
	findings = append(findings, groupFindings("staff", "employee_id", byEmployeeID, SeverityCritical,
		"resolve employee identifier conflict manually")...)

	// One identity represented by several rows across schools can be
	// consolidated into links from a single canonical row.
	for email, ids := range byIdentity {
		if len(ids) < 2 {
			continue
		}
		if !distinct(identitySchools[email]) {
			continue // same school twice is an identity conflict, already flagged via employee_id
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		findings = append(findings, Finding{
			EntityType:     "staff",
			ConflictField:  "multi_school",
			ConflictValue:  email,
			ConflictingIDs: ids,
			Severity:       SeverityAutoFixable,
			ProposedFix:    "link all schools to the canonical staff record",
		})
	}
	return findings, nil
}

// AutoFix resolves every auto-fixable finding in the analysis. Critical
// findings are untouched. Individual fix failures are collected, not fatal.
func (a *DuplicationAudit) AutoFix(analysis *Analysis) (*FixResult, error) {
	result := &FixResult{Details: make(map[string]int)}

	for _, f := range analysis.Findings {
		if f.Severity != SeverityAutoFixable {
			continue
		}
		var err error
		switch f.EntityType + "." + f.ConflictField {
		case "account.username":
			err = a.fixUsernames(f, result)
		case "account.phone":
			err = a.fixPhones(f, result)
		case "school.name":
			err = a.fixSchoolNames(f, result)
		case "staff.multi_school":
			err = a.fixMultiSchoolStaff(f, result)
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s.%s %q: %v",
				f.EntityType, f.ConflictField, f.ConflictValue, err))
		}
	}

	log.Printf("[audit] auto-fix complete: %d duplications fixed", result.Fixed)
	return result, nil
}

// fixUsernames keeps the first account and suffixes the rest.
func (a *DuplicationAudit) fixUsernames(f Finding, result *FixResult) error {
	for _, id := range f.ConflictingIDs[1:] {
		suffixed := f.ConflictValue + "_" + strconv.FormatInt(time.Now().UnixNano(), 36)
		if err := a.store.UpdateAccountUsername(id, suffixed); err != nil {
			return err
		}
		result.Fixed++
		result.Details["username"]++
	}
	return nil
}

// fixPhones keeps the newest account's phone (highest id) and clears the rest.
func (a *DuplicationAudit) fixPhones(f Finding, result *FixResult) error {
	ids := append([]uint(nil), f.ConflictingIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	for _, id := range ids[1:] {
		if err := a.store.ClearAccountPhone(id); err != nil {
			return err
		}
		result.Fixed++
		result.Details["phone"]++
	}
	return nil
}

// fixSchoolNames disambiguates by appending the region to all but the first.
func (a *DuplicationAudit) fixSchoolNames(f Finding, result *FixResult) error {
	schools, err := a.store.ListSchools()
	if err != nil {
		return err
	}
	regions := make(map[uint]string, len(schools))
	names := make(map[uint]string, len(schools))
	for _, sc := range schools {
		regions[sc.ID] = sc.Region
		names[sc.ID] = sc.Name
	}
	for _, id := range f.ConflictingIDs[1:] {
		region := regions[id]
		if region == "" {
			region = strconv.FormatUint(uint64(id), 10)
		}
		if err := a.store.UpdateSchoolName(id, names[id]+" - "+region); err != nil {
			return err
		}
		result.Fixed++
		result.Details["school_name"]++
	}
	return nil
}

// fixMultiSchoolStaff links every duplicate row's school to the canonical
// (lowest id) staff record. The duplicate rows stay for manual review.
func (a *DuplicationAudit) fixMultiSchoolStaff(f Finding, result *FixResult) error {
	staff, err := a.store.ListStaff()
	if err != nil {
		return err
	}
	schoolOf := make(map[uint]uint, len(staff))
	for _, st := range staff {
		schoolOf[st.ID] = st.SchoolID
	}
	canonical := f.ConflictingIDs[0]
	for _, id := range f.ConflictingIDs {
		if err := a.store.CreateStaffSchoolLink(canonical, schoolOf[id]); err != nil {
			return err
		}
	}
	result.Fixed++
	result.Details["staff_links"]++
	return nil
}

// Report renders a human-readable summary of an analysis and, optionally,
// the auto-fix that followed it.
func (a *DuplicationAudit) Report(analysis *Analysis, fix *FixResult) string {
	var b strings.Builder

	b.WriteString("# DUPLICATION AUDIT REPORT\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", analysis.Summary.GeneratedAt.Format(time.RFC1123))

	b.WriteString("## SUMMARY\n")
	fmt.Fprintf(&b, "- Duplicates found: %d\n", analysis.Summary.TotalDuplicates)
	fmt.Fprintf(&b, "- Critical (manual action required): %d\n", analysis.Summary.Critical)
	fmt.Fprintf(&b, "- Auto-fixable: %d\n", analysis.Summary.AutoFixable)
	if fix != nil {
		fmt.Fprintf(&b, "- Auto-fixes applied: %d\n", fix.Fixed)
	}
	b.WriteString("\n## BY CATEGORY\n")

	categories := make([]string, 0, len(analysis.Summary.ByCategory))
	for cat := range analysis.Summary.ByCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	for _, cat := range categories {
		fmt.Fprintf(&b, "- %s: %d\n", cat, analysis.Summary.ByCategory[cat])
	}

	if analysis.Summary.Critical > 0 {
		b.WriteString("\n## CRITICAL FINDINGS\n")
		for _, f := range analysis.Findings {
			if f.Severity != SeverityCritical {
				continue
			}
			fmt.Fprintf(&b, "- %s.%s %q: ids %v (%s)\n",
				f.EntityType, f.ConflictField, f.ConflictValue, f.ConflictingIDs, f.ProposedFix)
		}
	}

	return b.String()
}

// groupFindings emits one finding per key that maps to more than one id.
func groupFindings(entityType, field string, groups map[string][]uint, severity, fix string) []Finding {
	keys := make([]string, 0, len(groups))
	for key, ids := range groups {
		if len(ids) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	findings := make([]Finding, 0, len(keys))
	for _, key := range keys {
		ids := append([]uint(nil), groups[key]...)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		findings = append(findings, Finding{
			EntityType:     entityType,
			ConflictField:  field,
			ConflictValue:  key,
			ConflictingIDs: ids,
			Severity:       severity,
			ProposedFix:    fix,
		})
	}
	return findings
}

func distinct(ids []uint) bool {
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}
