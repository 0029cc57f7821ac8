package gateway

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "aubus_gateway_frames_total",
	Help: "Total Protocol Gateway frames handled, by opcode and status.",
}, []string{"opcode", "status"})

func recordFrame(opcode Opcode, status Status) {
	framesTotal.WithLabelValues(strconv.Itoa(int(opcode)), strconv.Itoa(int(status))).Inc()
}
