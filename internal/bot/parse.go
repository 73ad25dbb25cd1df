package bot

import (
	"fmt"
	"strconv"
	"strings"

	"fresherjobs/internal/model"
)

// RuleArgs holds the parsed arguments of a rule command.
type RuleArgs struct {
	SourceID int64
	Scope    model.RuleScope
	Value    string
}

// ParseRuleCommand parses arguments for /include, /exclude, etc.
// Format: <source_id> [-s title|content|all] <value...>
func ParseRuleCommand(args string) (RuleArgs, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return RuleArgs{}, fmt.Errorf("usage: <source_id> [-s title|content|all] <value>")
	}

	sourceID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return RuleArgs{}, fmt.Errorf("invalid source ID %q", parts[0])
	}

	scope := model.ScopeAll
	rest := parts[1:]

	if len(rest) >= 2 && rest[0] == "-s" {
		switch rest[1] {
		case "title":
			scope = model.ScopeTitle
		case "company":
			scope = model.ScopeCompany
		case "content":
			scope = model.ScopeContent
		case "all":
			scope = model.ScopeAll
		default:
			return RuleArgs{}, fmt.Errorf("invalid scope %q, use: title, company, content, all", rest[1])
		}
		rest = rest[2:]
	}

	if len(rest) == 0 {
		return RuleArgs{}, fmt.Errorf("rule value is required")
	}

	return RuleArgs{
		SourceID: sourceID,
		Scope:    scope,
		Value:    strings.Join(rest, " "),
	}, nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q", s)
	}
	return id, nil
}

// ParseListingArg extracts a listing ID from a command argument string.
func ParseListingArg(args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", fmt.Errorf("listing ID is required")
	}
	return fields[0], nil
}

// ParseAddSourceArgs extracts a feed URL and an optional default listing type.
func ParseAddSourceArgs(args string) (string, model.OpportunityType, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 || len(parts) > 2 {
		return "", "", fmt.Errorf("usage: /addsource <url> [JOB|INTERNSHIP|WALKIN]")
	}
	typ := model.TypeJob
	if len(parts) == 2 {
		t, ok := model.ParseOpportunityType(strings.ToUpper(parts[1]))
		if !ok {
			return "", "", fmt.Errorf("invalid type %q, use: JOB, INTERNSHIP, WALKIN", parts[1])
		}
		typ = t
	}
	return parts[0], typ, nil
}

// ParseIntervalArgs extracts a source ID and interval in minutes.
func ParseIntervalArgs(args string) (int64, int, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("usage: /interval <id> <minutes>")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid source ID %q", parts[0])
	}
	mins, err := strconv.Atoi(parts[1])
	if err != nil || mins < 1 || mins > 1440 {
		return 0, 0, fmt.Errorf("interval must be between 1 and 1440 minutes")
	}
	return id, mins, nil
}

// ParseLimitArg parses an optional count, defaulting to def and capped at ceiling.
func ParseLimitArg(args string, def, ceiling int) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.Fields(s)[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("count must be a positive number")
	}
	return min(n, ceiling), nil
}
