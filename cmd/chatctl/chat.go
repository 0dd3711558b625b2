package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

func newClient(apiURL string) *resty.Client {
	return resty.New().
		SetBaseURL(apiURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(60 * time.Second)
}

func runText(apiURL, userID, conversationID, message string, out io.Writer) error {
	if message == "" {
		return fmt.Errorf("message cannot be empty")
	}
	payload := map[string]interface{}{"message": message}
	if userID != "" {
		payload["userId"] = userID
	}
	if conversationID != "" {
		payload["conversationId"] = conversationID
	}

	resp, err := newClient(apiURL).R().
		SetBody(payload).
		Post("/api/chat/text")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}
	_, err = fmt.Fprintln(out, resp.String())
	return err
}

func runContext(apiURL, sessionID string, window int, out io.Writer) error {
	req := newClient(apiURL).R().SetQueryParam("sessionId", sessionID)
	if window > 0 {
		req.SetQueryParam("windowSize", strconv.Itoa(window))
	}
	resp, err := req.Get("/api/chat/context")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}
	_, err = fmt.Fprintln(out, resp.String())
	return err
}

func runClear(apiURL, sessionID string, out io.Writer) error {
	resp, err := newClient(apiURL).R().
		SetBody(map[string]string{"sessionId": sessionID}).
		Post("/api/chat/clear")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}
	_, err = fmt.Fprintln(out, resp.String())
	return err
}
