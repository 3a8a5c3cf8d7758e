package action

import (
	"errors"
	"testing"
)

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "14:30:00", want: TimeOfDay{14, 30, 0}},
		{in: "00:00", want: TimeOfDay{0, 0, 0}},
		{in: " 23:59:59 ", want: TimeOfDay{23, 59, 59}},
		{in: "7:05", want: TimeOfDay{7, 5, 0}},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:00:60", wantErr: true},
		{in: "-1:00", wantErr: true},
		{in: "+1:00", wantErr: true},
		{in: "-0:30", wantErr: true},
		{in: "1:+0", wantErr: true},
		{in: "12:00:-0", wantErr: true},
		{in: "1 :00", wantErr: true},
		{in: "12", wantErr: true},
		{in: "12:00:00:00", wantErr: true},
		{in: "aa:bb", wantErr: true},
		{in: "12::00", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTimeOfDay(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidTime) {
					t.Fatalf("expected ErrInvalidTime, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestTimeOfDayString(t *testing.T) {
	t.Parallel()
	if got := (TimeOfDay{7, 5, 0}).String(); got != "07:05:00" {
		t.Fatalf("got %q", got)
	}
}
