package domain

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

type RuleOperation string

const (
	RuleInclude RuleOperation = "include"
	RuleExclude RuleOperation = "exclude"
)

func (o RuleOperation) Symbol() string {
	if o == RuleExclude {
		return "-"
	}
	return "+"
}

// Rule is one include or exclude filter. A nil Definition applies the rule
// to every dataset definition.
type Rule struct {
	ID         int
	Operation  RuleOperation
	Directory  string
	Pattern    string
	Definition *DatasetDefinitionID
}

func (r Rule) String() string {
	return fmt.Sprintf("%s %s %s", r.Operation.Symbol(), r.Directory, r.Pattern)
}

func (r Rule) Validate() error {
	if strings.TrimSpace(r.Directory) == "" {
		return fmt.Errorf("rule [%d]: directory cannot be empty", r.ID)
	}
	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("rule [%d]: pattern cannot be empty", r.ID)
	}
	if r.Operation != RuleInclude && r.Operation != RuleExclude {
		return fmt.Errorf("rule [%d]: unsupported operation [%s]", r.ID, r.Operation)
	}
	return nil
}

// AppliesTo reports whether the rule should be used for the given definition.
func (r Rule) AppliesTo(definition DatasetDefinitionID) bool {
	return r.Definition == nil || *r.Definition == definition
}

// ParseRules reads rules in the "<+|-> <directory> <pattern>" line format.
// Blank lines and lines starting with '#' are ignored; rule ids are line numbers.
func ParseRules(r io.Reader) ([]Rule, error) {
	var rules []Rule

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected [<+|-> <directory> <pattern>] but found [%s]", line, text)
		}

		var op RuleOperation
		switch fields[0] {
		case "+":
			op = RuleInclude
		case "-":
			op = RuleExclude
		default:
			return nil, fmt.Errorf("line %d: unexpected rule operation [%s]", line, fields[0])
		}

		rule := Rule{ID: line, Operation: op, Directory: fields[1], Pattern: fields[2]}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}

	return rules, nil
}

// RuleFailure pairs a rule with the reason it matched nothing or could not be evaluated.
type RuleFailure struct {
	Rule    Rule
	Failure error
}

func (f RuleFailure) String() string {
	return fmt.Sprintf("Rule [%s] failed with [%v]", f.Rule, f.Failure)
}
