package gtd

import "testing"

func i64(v int64) *int64 { return &v }

func TestFlagMap(t *testing.T) {
	tests := []struct {
		name      string
		flag      Flag
		in        *int64
		wantCode  int64
		wantLabel string
		wantOK    bool
	}{
		{"success affirmative", Success, i64(1), 1, "Successful", true},
		{"success negative", Success, i64(0), 0, "Unsuccessful", true},
		{"success null excluded", Success, nil, 0, "", false},
		{"property unknown sentinel", PropertyDamage, i64(-9), -9, "Unknown", true},
		{"hostage null remapped", Hostage, nil, HostageNoData, "No Data", true},
		{"hostage explicit unknown", Hostage, i64(-9), -9, "Unknown", true},
		{"multiple unknown is -1", Multiple, i64(-1), -1, "Unknown", true},
		{"out of domain rejected", Success, i64(7), 7, "", false},
		{"extended null excluded", Extended, nil, 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, label, ok := tt.flag.Map(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if code != tt.wantCode || label != tt.wantLabel {
				t.Errorf("got (%d, %q), want (%d, %q)", code, label, tt.wantCode, tt.wantLabel)
			}
		})
	}
}

func TestFlagDomainSorted(t *testing.T) {
	got := Hostage.Domain()
	want := []int64{-9, HostageNoData, 0, 1}
	if len(got) != len(want) {
		t.Fatalf("domain = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("domain = %v, want %v", got, want)
		}
	}
}

func TestDateKey(t *testing.T) {
	if got := DateKey(2001, 9, 11); got != 20010911 {
		t.Errorf("DateKey(2001,9,11) = %d", got)
	}
	if got := DateKey(1970, 1, 1); got != 19700101 {
		t.Errorf("DateKey(1970,1,1) = %d", got)
	}
}

func TestValidDate(t *testing.T) {
	valid := [][3]int{{2001, 9, 11}, {2000, 2, 29}, {1900, 1, 1}, {2100, 12, 31}}
	for _, d := range valid {
		if !ValidDate(d[0], d[1], d[2]) {
			t.Errorf("ValidDate(%v) = false, want true", d)
		}
	}
	invalid := [][3]int{
		{2001, 13, 1},  // month out of range
		{2001, 2, 30},  // impossible combination
		{2001, 1, 32},  // day out of range
		{2001, 0, 5},   // month zero
		{2001, 5, 0},   // day unrecorded
		{1899, 12, 31}, // before coverage
		{2101, 1, 1},   // after coverage
		{1900, 2, 29},  // 1900 is not a leap year
	}
	for _, d := range invalid {
		if ValidDate(d[0], d[1], d[2]) {
			t.Errorf("ValidDate(%v) = true, want false", d)
		}
	}
}
