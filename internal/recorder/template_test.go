package recorder

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestRenderName_example(t *testing.T) {
	got := renderName("obs!2017_08_15_15_25_36-N-DD_HH_II_SS-DD_HH_II_SS.mp4", 1,
		clock{day: 10, hour: 20, minute: 30, second: 40},
		clock{day: 50, hour: 60, minute: 70, second: 80})
	want := "obs!2017_08_15_15_25_36-1-10_20_30_40-50_60_70_80.mp4"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestRenderFilename(t *testing.T) {
	end := time.Date(2017, 8, 15, 15, 25, 36, 0, time.UTC)
	info := SegmentInfo{
		End:         end,
		Duration:    10*time.Minute + 5*time.Second,
		Number:      12,
		StoragePath: "/content",
		CurrentFile: "/content/cam.mp4",
	}

	got := RenderFilename("cam-N-DD_HH_II_SS-DD_HH_II_SS.mp4", info)
	want := "/content" + string(os.PathSeparator) + "cam-12-15_15_15_31-15_15_25_36.mp4"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
	if again := RenderFilename("cam-N-DD_HH_II_SS-DD_HH_II_SS.mp4", info); again != got {
		t.Errorf("rendering is not deterministic: %q vs %q", again, got)
	}
}

func TestRenderFilename_replaces_all_tokens(t *testing.T) {
	info := SegmentInfo{
		End:         time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:    time.Hour,
		Number:      7,
		StoragePath: "s",
	}
	templates := []string{
		"N_DD_HH_II_SS_DD_HH_II_SS",
		"DDHHIISS-N-DDHHIISS.mp4",
		"x/DD.HH.II.SS/N/DD.HH.II.SS",
	}
	for _, tpl := range templates {
		name := strings.TrimPrefix(RenderFilename(tpl, info), "s"+string(os.PathSeparator))
		for _, tok := range []string{"DD", "HH", "II", "SS", "N"} {
			if strings.Contains(name, tok) {
				t.Errorf("%q rendered as %q still contains %s", tpl, name, tok)
			}
		}
	}
}

func TestRenderFilename_literal_N_replaced(t *testing.T) {
	info := SegmentInfo{End: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), Number: 1, StoragePath: "s"}
	got := RenderFilename("NEWS", info)
	if want := "s" + string(os.PathSeparator) + "1EWS"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderFilename_path_not_cleaned(t *testing.T) {
	info := SegmentInfo{End: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), Number: 1, StoragePath: "/content/"}
	got := RenderFilename("../a", info)
	if want := "/content/" + string(os.PathSeparator) + "../a"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSegmentInfo(t *testing.T) {
	end := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	info := SegmentInfo{End: end, Duration: 90 * time.Second, CurrentFile: "/a/b/Blue-HD.mp4"}

	if got := info.RecordedFile(); got != "/a/b/Blue-HD.mp4" {
		t.Errorf("RecordedFile = %q", got)
	}
	if want := time.Date(2024, 1, 2, 3, 2, 35, 0, time.UTC); !info.Start().Equal(want) {
		t.Errorf("Start = %s, want %s", info.Start(), want)
	}
}

func TestNewRecordParams(t *testing.T) {
	rp := NewRecordParams(Policy{SegmentLimitMinutes: 15}, "/content")
	if rp.Format != FormatMP4 || rp.Segmentation != SegmentByDuration {
		t.Errorf("unexpected format: %+v", rp)
	}
	if rp.SegmentDuration != 15*time.Minute {
		t.Errorf("SegmentDuration = %s", rp.SegmentDuration)
	}
	if !rp.StartOnKeyFrame || !rp.RecordData || rp.OutputPath != "/content" {
		t.Errorf("unexpected params: %+v", rp)
	}
}
