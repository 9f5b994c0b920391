package extract

import "testing"

func TestNextPageURL(t *testing.T) {
	cases := []struct {
		name    string
		html    string
		page    int
		want    string
		wantOK  bool
	}{
		{
			name:   "next-link",
			html:   `<a href="?location=raleigh&page=2">Next</a>`,
			page:   1,
			want:   "https://npidb.org/organizations/agencies/home-health_251e00000x/nc/?location=raleigh&page=2",
			wantOK: true,
		},
		{
			name:   "chevron",
			html:   `<a href="/organizations/agencies/home-health_251e00000x/nc/?page=3">&gt;</a>`,
			page:   2,
			want:   "https://npidb.org/organizations/agencies/home-health_251e00000x/nc/?page=3",
			wantOK: true,
		},
		{
			name:   "aria-label",
			html:   `<a aria-label="Go to next page" href="?page=2">&#187;&#187;</a>`,
			page:   1,
			want:   "https://npidb.org/organizations/agencies/home-health_251e00000x/nc/?page=2",
			wantOK: true,
		},
		{
			name:   "page-number-link",
			html:   `<a href="?page=1">1</a><a href="?page=2">2</a><a href="?page=3">3</a>`,
			page:   1,
			want:   "https://npidb.org/organizations/agencies/home-health_251e00000x/nc/?page=2",
			wantOK: true,
		},
		{
			name:   "disabled-next-ends-pagination",
			html:   `<a href="?page=99" class="next disabled">Next</a>`,
			page:   99,
			wantOK: false,
		},
		{
			name:   "aria-disabled-next",
			html:   `<a href="?page=99" aria-disabled="true">Next</a>`,
			page:   99,
			wantOK: false,
		},
		{
			name:   "no-affordance",
			html:   `<a href="/about.aspx">About</a>`,
			page:   1,
			wantOK: false,
		},
		{
			name:   "anchor-only-href",
			html:   `<a href="#">Next</a>`,
			page:   1,
			wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := mustParse(t, "<html><body>"+tc.html+"</body></html>", listingURL)
			got, ok := NextPageURL(d, tc.page)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v (url=%q)", ok, tc.wantOK, got)
			}
			if ok && got != tc.want {
				t.Errorf("url = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNextPagePrefersNextOverNumbers(t *testing.T) {
	html := `<html><body>
		<a href="?page=5">5</a>
		<a href="?page=2">2</a>
		<a href="?page=2">Next</a>
	</body></html>`
	d := mustParse(t, html, listingURL)

	got, ok := NextPageURL(d, 1)
	if !ok {
		t.Fatal("expected a next page")
	}
	want := "https://npidb.org/organizations/agencies/home-health_251e00000x/nc/?page=2"
	if got != want {
		t.Errorf("url = %q, want %q", got, want)
	}
}
