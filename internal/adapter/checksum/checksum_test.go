package checksum

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestHasher(t *testing.T) {
	Convey("Given a file", t, func() {
		path := filepath.Join(t.TempDir(), "file")
		So(os.WriteFile(path, []byte("test content"), 0o644), ShouldBeNil)

		Convey("It should calculate checksums with every algorithm", func() {
			expected := map[string]string{
				CRC32:  "57f4675d",
				MD5:    "9473fdd0d880a43c21b7778d34872157",
				SHA1:   "1eebdf4fdc9fc7bf283031b93f9aef3338de9052",
				SHA256: "6ae8a75555209fd6c44157c0aed8016e763ff435a19cf186f76863140143ff72",
			}

			for name, checksum := range expected {
				hasher, err := New(name)
				So(err, ShouldBeNil)

				actual, err := hasher.Calculate(path)
				So(err, ShouldBeNil)
				So(actual, ShouldEqual, checksum)
			}
		})

		Convey("It should fail for missing files", func() {
			hasher, _ := New(SHA256)
			_, err := hasher.Calculate(filepath.Join(t.TempDir(), "missing"))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to open file")
		})

		Convey("It should reject unknown algorithms", func() {
			_, err := New("blake3")
			So(err, ShouldNotBeNil)
		})
	})
}
