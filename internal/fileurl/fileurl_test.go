package fileurl

import "testing"

func TestFromPath(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"plain posix path",
			"/Users/me/Library/Eagle/images/ABC.info/photo.png",
			"file:///Users/me/Library/Eagle/images/ABC.info/photo.png",
		},
		{
			"spaces",
			"/tmp/my photo.png",
			"file:///tmp/my%20photo.png",
		},
		{
			"parentheses forced",
			"/tmp/shot (1).png",
			"file:///tmp/shot%20%281%29.png",
		},
		{
			"unicode",
			"/tmp/写真.png",
			"file:///tmp/%E5%86%99%E7%9C%9F.png",
		},
		{
			"windows drive",
			`C:\Users\me\pic.png`,
			"file:///C:/Users/me/pic.png",
		},
		{
			"unc path",
			`\\Server\Share\dir\pic.png`,
			"file://Server/Share/dir/pic.png",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FromPath(tc.in); got != tc.want {
				t.Fatalf("FromPath(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeEagleAPIPath(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"raw path",
			"/lib/images/A.info/my photo.png",
			"file:///lib/images/A.info/my%20photo.png",
		},
		{
			"already encoded",
			"/lib/images/A.info/my%20photo.png",
			"file:///lib/images/A.info/my%20photo.png",
		},
		{
			"double encoded",
			"/lib/images/A.info/my%2520photo.png",
			"file:///lib/images/A.info/my%20photo.png",
		},
		{
			"file prefix stripped and rebuilt",
			"file:///lib/images/A.info/pic.png",
			"file:///lib/images/A.info/pic.png",
		},
		{
			"windows backslashes",
			`C:\lib\images\A.info\pic.png`,
			"file:///C:/lib/images/A.info/pic.png",
		},
		{
			"malformed percent kept literal",
			"/lib/100%done.png",
			"file:///lib/100%25done.png",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeEagleAPIPath(tc.in)
			if got != tc.want {
				t.Fatalf("NormalizeEagleAPIPath(%q) = %q, want %q", tc.in, got, tc.want)
			}
			// Feeding the output back in must not change it.
			if again := NormalizeEagleAPIPath(got); again != got {
				t.Fatalf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestResolveThumbnailURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"absolute http", "http://example.com/t.png", "http://example.com/t.png"},
		{"absolute https", "https://example.com/t.png", "https://example.com/t.png"},
		{"api relative", "/api/item/thumbnail?id=X", "http://localhost:41595/api/item/thumbnail?id=X"},
		{"api without slash", "api/item/thumbnail?id=X", "http://localhost:41595/api/item/thumbnail?id=X"},
		{"local path", "/lib/images/A.info/pic_thumbnail.png", "file:///lib/images/A.info/pic_thumbnail.png"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveThumbnailURL(tc.in, "localhost", 41595); got != tc.want {
				t.Fatalf("ResolveThumbnailURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
