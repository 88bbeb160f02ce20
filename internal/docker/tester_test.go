package docker

import "testing"

func TestParseReport(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		exitCode   int64
		wantPassed int
		wantFailed int
	}{
		{
			name:       "go test markers",
			output:     "--- PASS: TestLogin (0.01s)\n--- PASS: TestLogout (0.00s)\n--- FAIL: TestCheckout (0.20s)\nFAIL\n",
			exitCode:   1,
			wantPassed: 2,
			wantFailed: 1,
		},
		{
			name:       "all passing",
			output:     "--- PASS: TestLogin (0.01s)\n    --- PASS: TestLogin/expired (0.00s)\nPASS\nok\n",
			exitCode:   0,
			wantPassed: 2,
			wantFailed: 0,
		},
		{
			name:       "no markers clean exit",
			output:     "All checks passed.\n",
			exitCode:   0,
			wantPassed: 1,
			wantFailed: 0,
		},
		{
			name:       "no markers nonzero exit",
			output:     "panic: boom\n",
			exitCode:   2,
			wantPassed: 0,
			wantFailed: 1,
		},
		{
			name:       "passing markers but nonzero exit",
			output:     "--- PASS: TestLogin (0.01s)\nbuild failed\n",
			exitCode:   2,
			wantPassed: 1,
			wantFailed: 1,
		},
		{
			name:       "empty output clean exit",
			output:     "",
			exitCode:   0,
			wantPassed: 1,
			wantFailed: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := ParseReport(tt.output, tt.exitCode)
			if report.Passed != tt.wantPassed || report.Failed != tt.wantFailed {
				t.Errorf("ParseReport() = %d passed, %d failed, want %d/%d",
					report.Passed, report.Failed, tt.wantPassed, tt.wantFailed)
			}
			if (report.Failed == 0) != report.OK() {
				t.Errorf("OK() = %v inconsistent with failed count %d", report.OK(), report.Failed)
			}
		})
	}
}
