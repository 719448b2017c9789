// Package naming holds the hierarchical naming rules shared by nodes, devices
// and channels.
package naming

import (
	"fmt"
	"strconv"
	"strings"
)

// Named describes an object that has a name.
type Named interface {
	// Name returns the name of the object.
	Name() string
}

// NamedBase is a base implementation of Named.
type NamedBase struct {
	name string
}

// Name returns the name.
func (b NamedBase) Name() string {
	return b.name
}

// MakeNamedBase creates a new NamedBase. The name must be valid.
func MakeNamedBase(name string) NamedBase {
	MustBeValid(name)
	return NamedBase{name: name}
}

// Validate checks that a name is a dot separated list of elements, each
// starting with a capital letter and optionally followed by square-bracket
// indices, such as "Sta[3].Wifi".
func Validate(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}

	for _, token := range strings.Split(name, ".") {
		if err := validateToken(token); err != nil {
			return fmt.Errorf("name %q is not valid: %w", name, err)
		}
	}

	return nil
}

// MustBeValid panics if the name does not follow the naming convention.
func MustBeValid(name string) {
	if err := Validate(name); err != nil {
		panic(err.Error())
	}
}

func validateToken(token string) error {
	elem, rest, _ := strings.Cut(token, "[")
	if elem == "" {
		return fmt.Errorf("element must not be empty")
	}

	if strings.ContainsAny(elem, "_\"'- ]") {
		return fmt.Errorf("element %q contains an invalid character", elem)
	}

	if elem[0] < 'A' || elem[0] > 'Z' {
		return fmt.Errorf("element %q must start with a capital letter", elem)
	}

	if rest == "" {
		return nil
	}

	for _, idx := range strings.Split("["+rest, "[")[1:] {
		if !strings.HasSuffix(idx, "]") {
			return fmt.Errorf("bracket must match")
		}

		if _, err := strconv.Atoi(strings.TrimSuffix(idx, "]")); err != nil {
			return fmt.Errorf("index must be an integer")
		}
	}

	return nil
}

// BuildName builds a name from a parent name and an element name.
func BuildName(parentName, elementName string) string {
	if parentName == "" {
		return elementName
	}

	return parentName + "." + elementName
}

// BuildNameWithIndex builds a name from a parent name, an element name and an
// index.
func BuildNameWithIndex(parentName, elementName string, index int) string {
	return BuildName(parentName, elementName+"["+strconv.Itoa(index)+"]")
}
