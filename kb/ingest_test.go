package kb

import (
	"strings"
	"testing"

	"github.com/nivkeidan/hmochat/model"
)

const fixtureHTML = `<!DOCTYPE html>
<html>
<body>
<h2>טיפולי שיניים</h2>
<p>שירותי רפואת שיניים   מוצעים על ידי כל הקופות.</p>
<table>
<tr><th>שירות</th><th>מכבי</th><th>מאוחדת</th><th>כללית</th></tr>
<tr>
<td>סתימות</td>
<td>זהב: 70% הנחה כסף: 50% הנחה ארד: 30% הנחה</td>
<td>הנחה קבועה של 40%</td>
<td>זהב: 60% הנחה</td>
</tr>
</table>
<h3>פרטי התקשרות</h3>
<ul>
<li>מוקד מכבי: טלפון 02-1234567 שלוחה 3 <a href="https://maccabi.example/dental">אתר</a></li>
<li>בדיקות שגרתיות</li>
</ul>
</body>
</html>`

func extractFixture(t *testing.T) []Chunk {
	t.Helper()
	chunks, err := extractChunks("/kb/dental.html", fixtureHTML)
	if err != nil {
		t.Fatalf("extractChunks: %v", err)
	}
	return chunks
}

func chunksOfKind(chunks []Chunk, kind Kind) []Chunk {
	var out []Chunk
	for _, c := range chunks {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func TestExtractBenefitChunks(t *testing.T) {
	benefits := chunksOfKind(extractFixture(t), KindBenefit)

	// Maccabi cell splits into three tier segments, Meuhedet is one
	// untagged segment, Clalit has one gold segment.
	if len(benefits) != 5 {
		t.Fatalf("got %d benefit chunks, want 5: %+v", len(benefits), benefits)
	}

	byHMO := map[model.HMO][]Chunk{}
	for _, c := range benefits {
		if c.Service != "סתימות" {
			t.Errorf("benefit service = %q, want סתימות", c.Service)
		}
		if c.Section != "טיפולי שיניים" {
			t.Errorf("benefit section = %q, want טיפולי שיניים", c.Section)
		}
		if c.HMO == "" {
			t.Errorf("benefit chunk without hmo: %+v", c)
		}
		byHMO[c.HMO] = append(byHMO[c.HMO], c)
	}

	mac := byHMO[model.HMOMaccabi]
	if len(mac) != 3 {
		t.Fatalf("got %d maccabi segments, want 3", len(mac))
	}
	wantTiers := []string{"זהב", "כסף", "ארד"}
	for i, c := range mac {
		if len(c.TierTags) != 1 || c.TierTags[0] != wantTiers[i] {
			t.Errorf("maccabi segment %d tiers = %v, want [%s]", i, c.TierTags, wantTiers[i])
		}
		if strings.Contains(c.Text, ":") {
			t.Errorf("tier marker leaked into body: %q", c.Text)
		}
	}
	if mac[0].Text != "70% הנחה" {
		t.Errorf("gold segment body = %q, want %q", mac[0].Text, "70% הנחה")
	}

	meu := byHMO[model.HMOMeuhedet]
	if len(meu) != 1 || len(meu[0].TierTags) != 0 {
		t.Errorf("meuhedet cell without markers must yield one untagged chunk, got %+v", meu)
	}
}

func TestExtractContactAndServiceChunks(t *testing.T) {
	chunks := extractFixture(t)

	contacts := chunksOfKind(chunks, KindContact)
	if len(contacts) != 1 {
		t.Fatalf("got %d contact chunks, want 1", len(contacts))
	}
	c := contacts[0]
	if c.HMO != model.HMOMaccabi {
		t.Errorf("contact hmo = %q, want מכבי", c.HMO)
	}
	if c.Section != "פרטי התקשרות" {
		t.Errorf("contact section = %q", c.Section)
	}
	for _, want := range []string{"02-1234567", "שלוחה 3", "https://maccabi.example/dental"} {
		if !strings.Contains(c.Text, want) {
			t.Errorf("contact text %q missing %q", c.Text, want)
		}
	}

	services := chunksOfKind(chunks, KindService)
	if len(services) != 1 {
		t.Fatalf("got %d service chunks, want 1", len(services))
	}
	if services[0].Text != "בדיקות שגרתיות" || services[0].Service != "בדיקות שגרתיות" {
		t.Errorf("service chunk = %+v", services[0])
	}
}

func TestExtractBlurbAndNormalization(t *testing.T) {
	blurbs := chunksOfKind(extractFixture(t), KindBlurb)
	if len(blurbs) != 1 {
		t.Fatalf("got %d blurb chunks, want 1", len(blurbs))
	}
	txt := blurbs[0].Text
	if strings.Contains(txt, "  ") || strings.Contains(txt, "\n") {
		t.Errorf("blurb text not normalized: %q", txt)
	}
	if txt != strings.TrimSpace(txt) {
		t.Errorf("blurb text not trimmed: %q", txt)
	}
}

func TestExtractUniqueSourceURIs(t *testing.T) {
	chunks := extractFixture(t)
	seen := map[string]bool{}
	for _, c := range chunks {
		if c.SourceURI == "" {
			t.Fatalf("chunk without source uri: %+v", c)
		}
		if !strings.HasPrefix(c.SourceURI, "file:///kb/dental.html#") {
			t.Errorf("unexpected source uri %q", c.SourceURI)
		}
		if seen[c.SourceURI] {
			t.Errorf("duplicate source uri %q", c.SourceURI)
		}
		seen[c.SourceURI] = true
	}
}

func TestExtractDeterministic(t *testing.T) {
	a := extractFixture(t)
	b := extractFixture(t)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].SourceURI != b[i].SourceURI || a[i].Text != b[i].Text {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitTiersPreambleDropped(t *testing.T) {
	segs := splitTiers("בהתאם למסלול: זהב: 80% כסף: 60%")
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segs), segs)
	}
	if segs[0].tier != "זהב" || segs[0].body != "80%" {
		t.Errorf("segment 0 = %+v", segs[0])
	}
	if segs[1].tier != "כסף" || segs[1].body != "60%" {
		t.Errorf("segment 1 = %+v", segs[1])
	}
}

func TestGuessHMO(t *testing.T) {
	tests := []struct {
		in   string
		want model.HMO
		ok   bool
	}{
		{"מוקד מכבי", model.HMOMaccabi, true},
		{"Maccabi hotline", model.HMOMaccabi, true},
		{"מאוחדת שיא", model.HMOMeuhedet, true},
		{"CLALIT mushlam", model.HMOClalit, true},
		{"משרד הבריאות", "", false},
	}
	for _, tt := range tests {
		got, ok := guessHMO(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("guessHMO(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
