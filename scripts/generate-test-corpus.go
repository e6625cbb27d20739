//go:build ignore

// Package main generates a synthetic corpus for benchmarking and manual
// testing.
// Usage: go run scripts/generate-test-corpus.go -profiles 200 -knowledge 500 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numProfiles  = flag.Int("profiles", 200, "Number of profile records to generate")
	numKnowledge = flag.Int("knowledge", 500, "Number of knowledge records to generate")
	perFile      = flag.Int("per-file", 50, "Records per output file")
	outputDir    = flag.String("output", "testdata/bench", "Output directory")
	seed         = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var firstNames = []string{
	"Dana", "Miguel", "Priya", "Lars", "Aiko", "Tomas", "Nadia", "Kofi",
	"Elena", "Ravi", "Sofia", "Jonas", "Mei", "Omar", "Ingrid", "Caleb",
}

var lastNames = []string{
	"Reyes", "Okafor", "Lindqvist", "Tanaka", "Novak", "Haddad", "Silva",
	"Petrov", "Mwangi", "Fischer", "Castillo", "Nguyen", "Berg", "Rossi",
}

var departments = []string{
	"Engineering", "Platform", "Security", "IT Operations", "People Ops",
	"Finance", "Legal", "Support", "Data", "Design",
}

var roles = []string{
	"Software Engineer", "Engineering Manager", "SRE", "Product Manager",
	"Security Analyst", "IT Administrator", "Data Scientist", "Designer",
	"Support Lead", "Recruiter",
}

var skills = []string{
	"kubernetes", "terraform", "incident response", "postgres", "react",
	"payroll systems", "vendor management", "observability", "golang",
	"access control", "hiring", "compliance",
}

var topics = []string{
	"VPN Setup", "Expense Reports", "Onboarding Checklist", "Incident Runbook",
	"Laptop Provisioning", "Travel Policy", "Code Review Guidelines",
	"On-call Rotation", "Office Access", "Benefits Overview",
	"Data Retention Policy", "Deployment Process",
}

var categories = []string{"it", "hr", "finance", "engineering", "security", "facilities"}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}

	written := 0
	written += writeBatches(rng, "profiles", *numProfiles, func(b *strings.Builder, rng *rand.Rand, i int) {
		profileYAML(b, rng, i)
	})
	written += writeBatches(rng, "knowledge", *numKnowledge, func(b *strings.Builder, rng *rand.Rand, i int) {
		knowledgeYAML(b, rng, i)
	})

	fmt.Printf("Generated %d profiles and %d knowledge entries in %d files under %s\n",
		*numProfiles, *numKnowledge, written, *outputDir)
}

// writeBatches emits records in list-form YAML files of perFile records each
// and returns the number of files written.
func writeBatches(rng *rand.Rand, kind string, total int, emit func(*strings.Builder, *rand.Rand, int)) int {
	files := 0
	for start := 0; start < total; start += *perFile {
		end := start + *perFile
		if end > total {
			end = total
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%s:\n", kind)
		for i := start; i < end; i++ {
			emit(&b, rng, i)
		}

		name := fmt.Sprintf("%s-%04d.yaml", kind, files)
		path := filepath.Join(*outputDir, name)
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
		files++
	}
	return files
}

func profileYAML(b *strings.Builder, rng *rand.Rand, i int) {
	first := firstNames[rng.Intn(len(firstNames))]
	last := lastNames[rng.Intn(len(lastNames))]
	role := roles[rng.Intn(len(roles))]
	dept := departments[rng.Intn(len(departments))]
	skill1 := skills[rng.Intn(len(skills))]
	skill2 := skills[rng.Intn(len(skills))]

	fmt.Fprintf(b, "  - id: person-%04d\n", i)
	fmt.Fprintf(b, "    name: %s %s\n", first, last)
	fmt.Fprintf(b, "    role: %s\n", role)
	fmt.Fprintf(b, "    department: %s\n", dept)
	fmt.Fprintf(b, "    bio: %s %s is a %s in %s, focused on %s and %s.\n",
		first, last, strings.ToLower(role), dept, skill1, skill2)
	fmt.Fprintf(b, "    contact:\n")
	fmt.Fprintf(b, "      email: %s.%s@example.com\n", strings.ToLower(first), strings.ToLower(last))
	fmt.Fprintf(b, "    metadata:\n")
	fmt.Fprintf(b, "      skills: %s, %s\n", skill1, skill2)
}

func knowledgeYAML(b *strings.Builder, rng *rand.Rand, i int) {
	topic := topics[rng.Intn(len(topics))]
	category := categories[rng.Intn(len(categories))]
	skill := skills[rng.Intn(len(skills))]

	fmt.Fprintf(b, "  - id: kb-%04d\n", i)
	fmt.Fprintf(b, "    title: %s %d\n", topic, i)
	fmt.Fprintf(b, "    category: %s\n", category)
	fmt.Fprintf(b, "    body: >-\n")
	fmt.Fprintf(b, "      Step-by-step guide for %s. Covers prerequisites,\n", strings.ToLower(topic))
	fmt.Fprintf(b, "      common failure modes, and escalation paths. Related\n")
	fmt.Fprintf(b, "      area: %s. Contact the %s team with questions.\n",
		skill, categories[rng.Intn(len(categories))])
}
