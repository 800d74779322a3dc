package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tanpawarit/smart-zoo-assistant/agent/tool"
	"github.com/tanpawarit/smart-zoo-assistant/api/catalog"
)

//go:embed policy.yaml
var defaultMatrixRaw []byte

type Decision string

const (
	Allowed              Decision = "allowed"
	RequiresConfirmation Decision = "requires_confirmation"
	Denied               Decision = "denied"
)

var ErrInvalidMatrix = errors.New("invalid permission matrix")

// Matrix maps a role and an operation to a decision.
type Matrix struct {
	rules map[catalog.Role]map[string]Decision
}

type matrixFile struct {
	Roles map[string]map[string]string `yaml:"roles"`
}

// Row is one role's line of the matrix, used when rendering the policy for
// the model.
type Row struct {
	Role                 catalog.Role
	Allowed              []string
	RequiresConfirmation []string
}

func DefaultMatrix() *Matrix {
	m, err := ParseMatrix(defaultMatrixRaw)
	if err != nil {
		panic(fmt.Sprintf("embedded policy.yaml: %v", err))
	}
	return m
}

// LoadMatrix reads a matrix file. An empty path returns the default matrix.
func LoadMatrix(path string) (*Matrix, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultMatrix(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParseMatrix(raw)
}

func ParseMatrix(raw []byte) (*Matrix, error) {
	var f matrixFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMatrix, err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("%w: no roles", ErrInvalidMatrix)
	}

	m := &Matrix{rules: make(map[catalog.Role]map[string]Decision, len(f.Roles))}
	for roleName, ops := range f.Roles {
		role, err := catalog.ParseRole(roleName)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMatrix, err)
		}
		rules := make(map[string]Decision, len(ops))
		for op, value := range ops {
			if !slices.Contains(tool.Names, op) {
				return nil, fmt.Errorf("%w: role %s: unknown operation %q", ErrInvalidMatrix, role, op)
			}
			d := Decision(strings.ToLower(strings.TrimSpace(value)))
			switch d {
			case Allowed, RequiresConfirmation, Denied:
			default:
				return nil, fmt.Errorf("%w: role %s: operation %s: unknown decision %q", ErrInvalidMatrix, role, op, value)
			}
			rules[op] = d
		}
		m.rules[role] = rules
	}
	return m, nil
}

func (m *Matrix) Decide(role catalog.Role, operation string) Decision {
	if m == nil {
		return Denied
	}
	if d, ok := m.rules[role][operation]; ok {
		return d
	}
	return Denied
}

// Rows lists the matrix in role order, operations in tool order.
func (m *Matrix) Rows() []Row {
	rows := make([]Row, 0, len(catalog.Roles))
	for _, role := range catalog.Roles {
		row := Row{Role: role}
		for _, op := range tool.Names {
			switch m.Decide(role, op) {
			case Allowed:
				row.Allowed = append(row.Allowed, op)
			case RequiresConfirmation:
				row.RequiresConfirmation = append(row.RequiresConfirmation, op)
			}
		}
		rows = append(rows, row)
	}
	return rows
}
