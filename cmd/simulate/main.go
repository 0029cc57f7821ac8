// Command simulate drives one end-to-end ride request over the Protocol
// Gateway's raw TCP wire: a rider creates a request, the driver polls its
// queue and accepts, and the rider confirms, exercising the same
// newline-delimited JSON frames a
// real client speaks (§4.4).
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"time"
)

const (
	opCreateRequest = iota + 1
	opRiderStatus
	opRiderConfirm
	opRiderCancel
	opDriverQueue
	opDriverDecision
)

type frame struct {
	Type    int             `json:"type"`
	Token   string          `json:"token"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type response struct {
	Type    int `json:"type"`
	Status  int `json:"status"`
	Payload struct {
		Output json.RawMessage `json:"output"`
		Error  *string         `json:"error"`
	} `json:"payload"`
}

func main() {
	addr := flag.String("addr", "localhost:7070", "gateway TCP address")
	riderToken := flag.String("rider-token", "", "rider session token")
	driverToken := flag.String("driver-token", "", "driver session token")
	lat := flag.Float64("lat", 33.9, "pickup latitude")
	lon := flag.Float64("lon", 35.48, "pickup longitude")
	flag.Parse()

	if *riderToken == "" || *driverToken == "" {
		log.Fatal("both -rider-token and -driver-token are required (see cmd/seed output)")
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("dial gateway: %v", err)
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	createPayload, _ := json.Marshal(map[string]any{
		"pickup":         map[string]any{"area_label": "west_hall", "latitude": *lat, "longitude": *lon},
		"destination":    map[string]any{"label": "main_gate", "is_campus": true},
		"direction":      "to_campus",
		"requested_time": time.Now().Format(time.RFC3339),
		"min_rating":     0,
	})
	createResp, err := send(conn, reader, frame{Type: opCreateRequest, Token: *riderToken, Payload: createPayload})
	if err != nil {
		log.Fatalf("create request: %v", err)
	}
	if createResp.Payload.Error != nil {
		log.Fatalf("create request rejected: %s", *createResp.Payload.Error)
	}
	var created struct {
		Request struct {
			RequestID int64 `json:"request_id"`
		} `json:"request"`
	}
	if err := json.Unmarshal(createResp.Payload.Output, &created); err != nil {
		log.Fatalf("decode create output: %v", err)
	}
	log.Printf("created request %d", created.Request.RequestID)

	queuePayload, _ := json.Marshal(struct{}{})
	queueResp, err := send(conn, reader, frame{Type: opDriverQueue, Token: *driverToken, Payload: queuePayload})
	if err != nil {
		log.Fatalf("driver queue: %v", err)
	}
	if queueResp.Payload.Error != nil {
		log.Fatalf("driver queue rejected: %s", *queueResp.Payload.Error)
	}
	fmt.Println(string(queueResp.Payload.Output))

	decisionPayload, _ := json.Marshal(map[string]any{
		"request_id": created.Request.RequestID,
		"accept":     true,
	})
	decisionResp, err := send(conn, reader, frame{Type: opDriverDecision, Token: *driverToken, Payload: decisionPayload})
	if err != nil {
		log.Fatalf("driver decision: %v", err)
	}
	if decisionResp.Payload.Error != nil {
		log.Fatalf("driver decision rejected: %s", *decisionResp.Payload.Error)
	}
	log.Printf("driver accepted: %s", string(decisionResp.Payload.Output))

	confirmPayload, _ := json.Marshal(map[string]any{"request_id": created.Request.RequestID})
	confirmResp, err := send(conn, reader, frame{Type: opRiderConfirm, Token: *riderToken, Payload: confirmPayload})
	if err != nil {
		log.Fatalf("rider confirm: %v", err)
	}
	if confirmResp.Payload.Error != nil {
		log.Fatalf("rider confirm rejected: %s", *confirmResp.Payload.Error)
	}
	log.Printf("ride confirmed: %s", string(confirmResp.Payload.Output))
}

func send(conn net.Conn, reader *bufio.Reader, req frame) (response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return response{}, err
	}
	body = append(body, '\n')
	if _, err := conn.Write(body); err != nil {
		return response{}, err
	}
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return response{}, err
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return response{}, err
	}
	return resp, nil
}
