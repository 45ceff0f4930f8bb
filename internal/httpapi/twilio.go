package httpapi

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"
)

const signatureHeader = "X-Twilio-Signature"

var callStatuses = map[string]struct{}{
	"queued":      {},
	"ringing":     {},
	"in-progress": {},
	"completed":   {},
	"busy":        {},
	"failed":      {},
	"no-answer":   {},
	"canceled":    {},
}

// verifyTwilioSignature rejects webhook requests not signed with the account
// auth token. It is a pass-through when no token is configured.
func (s *Server) verifyTwilioSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.validator == nil {
			next.ServeHTTP(w, r)
			return
		}
		signature := r.Header.Get(signatureHeader)
		if signature == "" {
			s.logger.Warn("webhook without signature", zap.String("path", r.URL.Path))
			s.metrics.CallEvent("signature_rejected")
			respondError(w, http.StatusForbidden, "missing_signature", "missing "+signatureHeader+" header")
			return
		}
		if err := r.ParseForm(); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
			return
		}
		signedURL := requestURL(r)
		if !s.validator.Validate(signedURL, flattenForm(r.PostForm), signature) {
			s.logger.Warn("webhook signature invalid", zap.String("url", signedURL))
			s.metrics.CallEvent("signature_rejected")
			respondError(w, http.StatusForbidden, "invalid_signature", "signature validation failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestURL rebuilds the URL the provider signed, honoring a TLS
// terminating proxy in front of the service.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func flattenForm(form url.Values) map[string]string {
	out := make(map[string]string, len(form))
	for k, v := range form {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// handleWebhook answers an incoming call with TwiML that connects it to the
// media stream endpoint.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	callSid := r.PostForm.Get("CallSid")
	from := r.PostForm.Get("From")

	host := s.cfg.PublicHost
	if host == "" {
		host = r.Host
	}
	stream := twiml.VoiceStream{
		Url: "wss://" + host + "/media-stream",
		InnerElements: []twiml.Element{
			twiml.VoiceParameter{Name: "callSid", Value: callSid},
			twiml.VoiceParameter{Name: "caller", Value: from},
		},
	}
	doc, err := twiml.Voice([]twiml.Element{
		twiml.VoiceConnect{InnerElements: []twiml.Element{stream}},
	})
	if err != nil {
		s.logger.Error("build twiml failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "twiml_failed", "could not build call instructions")
		return
	}

	s.metrics.CallEvent("webhook")
	s.logger.Info("incoming call",
		zap.String("call_sid", callSid),
		zap.String("from", s.redactor.Phone(from)),
		zap.String("to", s.redactor.Phone(r.PostForm.Get("To"))),
		zap.String("status", r.PostForm.Get("CallStatus")),
	)

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

// handleStatusCallback only records the status change. Call records are
// written by the bridge when the stream ends.
func (s *Server) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	status := r.PostForm.Get("CallStatus")
	s.logger.Info("call status",
		zap.String("call_sid", r.PostForm.Get("CallSid")),
		zap.String("status", status),
		zap.String("from", s.redactor.Phone(r.PostForm.Get("From"))),
		zap.String("duration", r.PostForm.Get("CallDuration")),
	)
	if _, known := callStatuses[status]; known {
		s.metrics.CallEvent("status_" + status)
	} else {
		s.metrics.CallEvent("status_other")
	}
	w.WriteHeader(http.StatusOK)
}
