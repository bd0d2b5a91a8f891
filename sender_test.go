package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/Shimmur/logloader/reporter"
	"github.com/jarcoal/httpmock"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	. "github.com/smartystreets/goconvey/convey"
)

const testCredential = "cm9vdEBleGFtcGxlLmNvbTpDb21wbGV4cGFzcyMxMjM="

func Test_BasicCredential(t *testing.T) {
	Convey("BasicCredential() encodes the default root user", t, func() {
		So(BasicCredential("root@example.com", "Complexpass#123"), ShouldEqual, testCredential)
	})
}

func Test_NewHTTPSender(t *testing.T) {
	Convey("NewHTTPSender()", t, func() {
		Convey("returns a properly configured sender", func() {
			sender := NewHTTPSender("localhost", []int{5080}, "default", "test", testCredential)

			So(sender.Host, ShouldEqual, "localhost")
			So(sender.Ports, ShouldResemble, []int{5080})
			So(sender.client, ShouldNotBeNil)
			So(sender.URLFor(5080), ShouldEqual, "http://localhost:5080/api/default/test/_json")
		})

		Convey("warns about ports the cluster doesn't use", func() {
			capture := LogCapture(func() {
				NewHTTPSender("localhost", []int{5080, 9999}, "default", "test", testCredential)
			})

			So(capture, ShouldContainSubstring, "Port 9999 is not one of the known ingestion ports")
			So(capture, ShouldNotContainSubstring, "Port 5080")
		})
	})
}

func Test_SetCompression(t *testing.T) {
	Convey("SetCompression()", t, func() {
		sender := NewHTTPSender("localhost", []int{5080}, "default", "test", testCredential)

		So(sender.SetCompression("gzip"), ShouldBeNil)
		So(sender.SetCompression("zstd"), ShouldBeNil)
		So(sender.SetCompression("none"), ShouldBeNil)
		So(sender.compression, ShouldEqual, "")

		err := sender.SetCompression("lzma")
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "unsupported compression 'lzma'")
	})
}

func Test_HTTPSenderSend(t *testing.T) {
	Convey("HTTPSender.Send()", t, func() {
		Reset(func() {
			httpmock.DeactivateAndReset()
		})

		sender := NewHTTPSender("localhost", []int{5080}, "default", "test", testCredential)
		httpmock.ActivateNonDefault(sender.client)

		url := "http://localhost:5080/api/default/test/_json"
		generator := newTestGenerator(defaultGeneratorConfig())

		var (
			received [][]map[string]interface{}
			headers  []http.Header
		)

		decode := func(req *http.Request, body io.Reader) {
			var batch []map[string]interface{}
			_ = json.NewDecoder(body).Decode(&batch)
			received = append(received, batch)
			headers = append(headers, req.Header.Clone())
		}

		httpmock.RegisterResponder("POST", url, func(req *http.Request) (*http.Response, error) {
			decode(req, req.Body)
			return httpmock.NewStringResponse(200, `{"code":200}`), nil
		})

		Convey("posts the batch as a JSON array with basic auth", func() {
			_ = LogCapture(func() {
				err := sender.Send(generator.Batch(5))
				So(err, ShouldBeNil)
			})

			So(httpmock.GetCallCountInfo()["POST "+url], ShouldEqual, 1)
			So(len(received[0]), ShouldEqual, 5)
			So(headers[0].Get("Authorization"), ShouldEqual, "Basic "+testCredential)
			So(headers[0].Get("Content-Type"), ShouldEqual, "application/json")
			So(headers[0].Get("Content-Encoding"), ShouldBeEmpty)

			for _, record := range received[0] {
				So(record, ShouldContainKey, "_timestamp")
				So(record, ShouldContainKey, "id")
				So(record, ShouldContainKey, "kubernetes_namespace")
				So(record, ShouldContainKey, "kubernetes_pod_name")
				So(record, ShouldContainKey, "log")
			}
		})

		Convey("sends 2 requests of 5 records for 10 records in strides of 5", func() {
			stats := reporter.NewStatsReporter("", "", time.Second)

			_ = LogCapture(func() {
				err := NewDispatcher(10, 5, generator, sender, stats).Run()
				So(err, ShouldBeNil)
			})

			So(httpmock.GetCallCountInfo()["POST "+url], ShouldEqual, 2)
			So(len(received), ShouldEqual, 2)
			So(len(received[0]), ShouldEqual, 5)
			So(len(received[1]), ShouldEqual, 5)
		})

		Convey("times each port", func() {
			sender.Ports = []int{5080, 5090}
			otherURL := "http://localhost:5090/api/default/test/_json"
			httpmock.RegisterResponder("POST", otherURL, httpmock.NewStringResponder(200, `OK`))

			capture := LogCapture(func() {
				err := sender.Send(generator.Batch(1))
				So(err, ShouldBeNil)
			})

			So(httpmock.GetCallCountInfo()["POST "+url], ShouldEqual, 1)
			So(httpmock.GetCallCountInfo()["POST "+otherURL], ShouldEqual, 1)
			So(capture, ShouldContainSubstring, "port 5080 time : ")
			So(capture, ShouldContainSubstring, "port 5090 time : ")
		})

		Convey("compresses with gzip", func() {
			So(sender.SetCompression("gzip"), ShouldBeNil)
			httpmock.RegisterResponder("POST", url, func(req *http.Request) (*http.Response, error) {
				reader, err := gzip.NewReader(req.Body)
				if err != nil {
					return nil, err
				}
				decode(req, reader)
				return httpmock.NewStringResponse(200, `OK`), nil
			})

			_ = LogCapture(func() {
				So(sender.Send(generator.Batch(3)), ShouldBeNil)
			})

			So(headers[0].Get("Content-Encoding"), ShouldEqual, "gzip")
			So(len(received[0]), ShouldEqual, 3)
		})

		Convey("compresses with zstd", func() {
			So(sender.SetCompression("zstd"), ShouldBeNil)
			httpmock.RegisterResponder("POST", url, func(req *http.Request) (*http.Response, error) {
				reader, err := zstd.NewReader(req.Body)
				if err != nil {
					return nil, err
				}
				defer reader.Close()
				decode(req, reader)
				return httpmock.NewStringResponse(200, `OK`), nil
			})

			_ = LogCapture(func() {
				So(sender.Send(generator.Batch(3)), ShouldBeNil)
			})

			So(headers[0].Get("Content-Encoding"), ShouldEqual, "zstd")
			So(len(received[0]), ShouldEqual, 3)
		})

		Convey("errors on a non-success status", func() {
			httpmock.RegisterResponder("POST", url, httpmock.NewStringResponder(401, `Unauthorized Access`))

			err := sender.Send(generator.Batch(1))
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "bad response from "+url+": 401 Unauthorized Access")
		})

		Convey("stops the run when the endpoint fails", func() {
			httpmock.RegisterResponder("POST", url, httpmock.NewErrorResponder(errors.New("connection refused")))
			stats := reporter.NewStatsReporter("", "", time.Second)

			var err error
			_ = LogCapture(func() {
				err = NewDispatcher(20, 5, generator, sender, stats).Run()
			})

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "connection refused")
			So(httpmock.GetCallCountInfo()["POST "+url], ShouldEqual, 1)
		})
	})
}

func Test_HTTPSenderRefused(t *testing.T) {
	Convey("HTTPSender errors when the connection is refused", t, func() {
		// Grab a free port and release it so nothing is listening there
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		So(err, ShouldBeNil)
		port := listener.Addr().(*net.TCPAddr).Port
		So(listener.Close(), ShouldBeNil)

		var sender *HTTPSender
		_ = LogCapture(func() {
			sender = NewHTTPSender("127.0.0.1", []int{port}, "default", "test", testCredential)
		})

		generator := newTestGenerator(defaultGeneratorConfig())
		stats := reporter.NewStatsReporter("", "", time.Second)

		err = NewDispatcher(10, 5, generator, sender, stats).Run()
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "batch 0 (records 0-4) failed")
		So(err.Error(), ShouldContainSubstring, "failed posting batch")
		So(stats.Summary().Batches, ShouldEqual, 0)
	})
}
