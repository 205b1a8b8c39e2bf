package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/converse/pkg/awsauth"
	"github.com/papercomputeco/converse/pkg/converse"
	"github.com/papercomputeco/converse/pkg/converse/rest"
	"github.com/papercomputeco/converse/pkg/deltastream"
	"github.com/papercomputeco/converse/pkg/llm"
	"github.com/papercomputeco/converse/pkg/tools"
	"github.com/papercomputeco/converse/pkg/utils"
)

func streamEvent(text string) string {
	return fmt.Sprintf("\x00\x00\x00\x9b\x00\x00\x00W\x1f\x0b:event-type\x07\x00\x11contentBlockDelta\r"+
		":content-type\x07\x00\x10application/json"+
		":message-typeevent{\"contentBlockIndex\":0,\"delta\":{\"text\":%q},\"p\":\"abcdef\"}\x8f\xa1\n", text)
}

// exceptionEvent frames an exception event. The length byte of "exception"
// is a tab.
func exceptionEvent(name, message string) string {
	return "\x00\x00\x00\x9e\x00\x00\x00e\x8a\x1b\x0f:exception-type\x07\x00" + string(rune(len(name))) + name +
		"\r:content-type\x07\x00\x10application/json\r:message-type\x07\x00\texception" +
		fmt.Sprintf("{\"message\":%q}", message) + "\x51\x0c\x3e\x02"
}

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		handler  http.HandlerFunc
		client   *rest.Client
		captured struct {
			path      string
			auth      string
			accept    string
			userAgent string
			body      map[string]any
		}
	)

	BeforeEach(func() {
		handler = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured.path = r.URL.EscapedPath()
			captured.auth = r.Header.Get("Authorization")
			captured.accept = r.Header.Get("Accept")
			captured.userAgent = r.Header.Get("User-Agent")
			captured.body = nil
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &captured.body)
			handler(w, r)
		}))

		var err error
		client, err = rest.New(rest.Config{
			Endpoint:   server.URL,
			Authorizer: &awsauth.Bearer{Token: "test-token"},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	request := func(prompt string) *llm.ChatRequest {
		maxTokens, temperature, topP := 4096, 0.5, 0.9
		return &llm.ChatRequest{
			Model:       "amazon.nova-lite-v1:0",
			Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, prompt)},
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
			TopP:        &topP,
		}
	}

	Describe("New", func() {
		It("requires an endpoint and an authorizer", func() {
			_, err := rest.New(rest.Config{Authorizer: &awsauth.Bearer{Token: "x"}})
			Expect(err).To(HaveOccurred())

			_, err = rest.New(rest.Config{Endpoint: "http://localhost"})
			Expect(err).To(MatchError(awsauth.ErrNoCredentials))
		})
	})

	Describe("Converse", func() {
		It("sends the converse body and parses the reply", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{
					"output":{"message":{"role":"assistant","content":[{"text":"Max Verstappen is a Dutch driver."}]}},
					"stopReason":"end_turn",
					"usage":{"inputTokens":12,"outputTokens":8,"totalTokens":20},
					"metrics":{"latencyMs":321}
				}`)
			}

			resp, err := client.Converse(context.Background(), request("Tell me about Max Verstappen."))
			Expect(err).NotTo(HaveOccurred())

			Expect(captured.path).To(Equal("/model/amazon.nova-lite-v1:0/converse"))
			Expect(captured.auth).To(Equal("Bearer test-token"))
			Expect(captured.accept).To(Equal("application/json"))
			Expect(captured.userAgent).To(Equal(utils.UserAgent()))
			Expect(captured.body).To(HaveKey("messages"))
			Expect(captured.body["inferenceConfig"]).To(Equal(map[string]any{
				"maxTokens": float64(4096), "temperature": 0.5, "topP": 0.9,
			}))
			Expect(captured.body).NotTo(HaveKey("toolConfig"))

			Expect(resp.Message.Role).To(Equal("assistant"))
			Expect(resp.Message.GetText()).To(Equal("Max Verstappen is a Dutch driver."))
			Expect(resp.StopReason).To(Equal("end_turn"))
			Expect(resp.Usage.TotalTokens).To(Equal(20))
			Expect(resp.Usage.LatencyMs).To(BeEquivalentTo(321))
		})

		It("sends tool configuration and returns tool use blocks", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{
					"output":{"message":{"role":"assistant","content":[
						{"text":"Here is the course."},
						{"toolUse":{"toolUseId":"t1","name":"javascript_course_generator",
							"input":{"courseTitle":"JS","chapters":[{"title":"Intro","description":"Basics"}]}}}
					]}},
					"stopReason":"tool_use"
				}`)
			}

			resp, err := client.Converse(context.Background(), tools.CourseRequest(&llm.ChatRequest{Model: "amazon.nova-lite-v1:0"}))
			Expect(err).NotTo(HaveOccurred())

			toolConfig, ok := captured.body["toolConfig"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(toolConfig["toolChoice"]).To(Equal(map[string]any{"auto": map[string]any{}}))
			toolsList := toolConfig["tools"].([]any)
			spec := toolsList[0].(map[string]any)["toolSpec"].(map[string]any)
			Expect(spec["name"]).To(Equal(tools.CourseToolName))
			Expect(spec["inputSchema"]).To(HaveKey("json"))

			result, err := converse.Structured(resp)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Text).To(Equal("Here is the course."))
			Expect(result.Data["courseTitle"]).To(Equal("JS"))
		})

		It("returns a status error for upstream failures", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				_, _ = io.WriteString(w, `{"message":"Authentication failed"}`)
			}

			_, err := client.Converse(context.Background(), request("hi"))
			var se *converse.StatusError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.StatusCode).To(Equal(http.StatusForbidden))
			Expect(se.Body).To(Equal("Authentication failed"))
			Expect(converse.IsUpstream(err)).To(BeTrue())
		})

		It("returns ErrNoContent when the output has no message", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"output":{},"stopReason":"end_turn"}`)
			}

			_, err := client.Converse(context.Background(), request("hi"))
			Expect(err).To(MatchError(converse.ErrNoContent))
		})

		It("escapes model identifiers containing slashes", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"output":{"message":{"role":"assistant","content":[{"text":"ok"}]}}}`)
			}

			req := request("hi")
			req.Model = "arn:aws:bedrock:us-east-1::foundation-model/amazon.nova-lite-v1:0"
			_, err := client.Converse(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			Expect(captured.path).To(Equal("/model/arn:aws:bedrock:us-east-1::foundation-model%2Famazon.nova-lite-v1:0/converse"))
		})
	})

	Describe("ConverseStream", func() {
		It("decodes deltas from the event stream body", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/vnd.amazon.eventstream")
				flusher := w.(http.Flusher)
				for _, text := range []string{"Max ", "Verstappen ", "drives for Red Bull."} {
					_, _ = io.WriteString(w, streamEvent(text))
					flusher.Flush()
				}
			}

			stream, err := client.ConverseStream(context.Background(), request("Tell me about Max Verstappen."))
			Expect(err).NotTo(HaveOccurred())
			Expect(captured.path).To(Equal("/model/amazon.nova-lite-v1:0/converse-stream"))
			Expect(captured.accept).To(Equal("application/vnd.amazon.eventstream"))

			text, err := converse.Collect(stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Max Verstappen drives for Red Bull."))

			stats, ok := stream.(converse.StreamStats)
			Expect(ok).To(BeTrue())
			Expect(stats.Deltas()).To(Equal(3))
		})

		It("reports malformed envelopes through the hook", func() {
			var seen []*deltastream.MalformedEnvelopeError
			c, err := rest.New(rest.Config{
				Endpoint:   server.URL,
				Authorizer: &awsauth.Bearer{Token: "test-token"},
				OnMalformed: func(e *deltastream.MalformedEnvelopeError) {
					seen = append(seen, e)
				},
			})
			Expect(err).NotTo(HaveOccurred())

			handler = func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, ":message-typeevent{\"delta\":{\"text\":\"a\",}}\n"+streamEvent("b"))
			}

			stream, err := c.ConverseStream(context.Background(), request("hi"))
			Expect(err).NotTo(HaveOccurred())
			text, err := converse.Collect(stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("b"))
			Expect(seen).To(HaveLen(1))
		})

		It("ends the stream with an in-band exception", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/vnd.amazon.eventstream")
				_, _ = io.WriteString(w, streamEvent("Max "))
				_, _ = io.WriteString(w, exceptionEvent("throttlingException", "Too many tokens, please wait before trying again."))
			}

			stream, err := client.ConverseStream(context.Background(), request("hi"))
			Expect(err).NotTo(HaveOccurred())

			text, err := converse.Collect(stream)
			Expect(text).To(Equal("Max "))

			var exc *deltastream.StreamException
			Expect(errors.As(err, &exc)).To(BeTrue())
			Expect(exc.Type).To(Equal("throttlingException"))
			Expect(exc.Message).To(Equal("Too many tokens, please wait before trying again."))
		})

		It("surfaces a dropped connection after the deltas that arrived", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				conn, buf, err := w.(http.Hijacker).Hijack()
				if err != nil {
					return
				}
				defer conn.Close()

				_, _ = io.WriteString(buf, "HTTP/1.1 200 OK\r\n"+
					"Content-Type: application/vnd.amazon.eventstream\r\n"+
					"Transfer-Encoding: chunked\r\n\r\n")
				for _, text := range []string{"Max ", "Verstappen "} {
					ev := streamEvent(text)
					_, _ = fmt.Fprintf(buf, "%x\r\n%s\r\n", len(ev), ev)
				}
				_ = buf.Flush()
			}

			stream, err := client.ConverseStream(context.Background(), request("hi"))
			Expect(err).NotTo(HaveOccurred())

			var deltas []string
			for {
				text, nextErr := stream.Next()
				if nextErr != nil {
					err = nextErr
					break
				}
				deltas = append(deltas, text)
			}

			Expect(deltas).To(Equal([]string{"Max ", "Verstappen "}))
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, io.EOF)).To(BeFalse())

			_, err = stream.Next()
			Expect(errors.Is(err, io.EOF)).To(BeFalse())
		})

		It("releases the connection when closed early", func() {
			released := make(chan struct{})
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/vnd.amazon.eventstream")
				_, _ = io.WriteString(w, streamEvent("first "))
				w.(http.Flusher).Flush()

				select {
				case <-r.Context().Done():
					close(released)
				case <-time.After(5 * time.Second):
				}
			}

			stream, err := client.ConverseStream(context.Background(), request("hi"))
			Expect(err).NotTo(HaveOccurred())

			text, err := stream.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("first "))

			Expect(stream.Close()).To(Succeed())
			Eventually(released).Should(BeClosed())

			_, err = stream.Next()
			Expect(err).To(MatchError(io.ErrClosedPipe))
		})

		It("returns a status error before streaming", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, `{"message":"Too many requests"}`)
			}

			_, err := client.ConverseStream(context.Background(), request("hi"))
			Expect(err).To(MatchError(ContainSubstring("status 429")))
		})
	})
})
