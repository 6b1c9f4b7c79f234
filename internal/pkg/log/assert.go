package log

import (
	"bufio"
	"reflect"
	"strings"

	"github.com/keboola/go-utils/pkg/wildcards"
	"github.com/stretchr/testify/assert"

	"github.com/keboola/metric-duct/internal/pkg/encoding/json"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

// CompareJSONMessages checks that the expected JSON lines appear in the actual log in the same order.
// The actual log may contain extra lines, and each line may contain extra keys.
// String values are compared using wildcards, for example "%s".
func CompareJSONMessages(expected string, actual string) error {
	actualScanner := bufio.NewScanner(strings.NewReader(strings.Trim(actual, "\n")))
	expectedScanner := bufio.NewScanner(strings.NewReader(strings.Trim(expected, "\n")))

	for expectedScanner.Scan() {
		expectedLine := expectedScanner.Text()
		expectedData := make(map[string]any)
		if err := json.DecodeString(expectedLine, &expectedData); err != nil {
			return errors.Wrapf(err, "invalid expected line %q", expectedLine)
		}

		var skipped strings.Builder
		found := false
		for !found && actualScanner.Scan() {
			actualLine := actualScanner.Text()
			skipped.WriteString(actualLine)
			skipped.WriteString("\n")

			actualData := make(map[string]any)
			if err := json.DecodeString(actualLine, &actualData); err != nil {
				return errors.Wrapf(err, "invalid actual line %q", actualLine)
			}

			found = matchesMessage(expectedData, actualData)
		}

		if !found {
			return errors.Errorf(
				"Expected:\n-----\n%s\n-----\nActual:\n-----\n%s",
				expectedLine,
				strings.TrimRight(skipped.String(), "\n"),
			)
		}
	}

	return nil
}

// AssertJSONMessages is a testify style wrapper of CompareJSONMessages.
func AssertJSONMessages(t assert.TestingT, expected string, actual string, msgAndArgs ...any) bool {
	if err := CompareJSONMessages(expected, actual); err != nil {
		return assert.Fail(t, err.Error(), msgAndArgs...)
	}
	return true
}

func matchesMessage(expected, actual map[string]any) bool {
	for key, expectedValue := range expected {
		actualValue, ok := actual[key]
		if !ok {
			return false
		}

		if expectedStr, ok := expectedValue.(string); ok {
			actualStr, ok := actualValue.(string)
			if !ok || wildcards.Compare(expectedStr, actualStr) != nil {
				return false
			}
			continue
		}

		if !reflect.DeepEqual(expectedValue, actualValue) {
			return false
		}
	}
	return true
}
