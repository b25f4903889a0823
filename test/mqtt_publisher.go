package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// AirSample is the normalized payload the service accepts without a transformer
type AirSample struct {
	CO2       float64 `json:"co2"`
	CO        float64 `json:"co"`
	Dust      float64 `json:"dust"`
	Device    string  `json:"device"`
	Timestamp int64   `json:"ts"`
}

// VendorSample mimics a node that reports CO in ppb and dust in mg/m3,
// converted by the "vendor" transformer script
type VendorSample struct {
	Readings struct {
		CO2  float64 `json:"carbon_dioxide_ppm"`
		CO   float64 `json:"carbon_monoxide_ppb"`
		Dust float64 `json:"pm_mg_m3"`
	} `json:"readings"`
	TimestampMS int64 `json:"time_ms"`
}

// DeviceConfig describes one simulated node
type DeviceConfig struct {
	ID       string
	Type     string
	Interval time.Duration
}

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker address")
	username := flag.String("username", "user", "MQTT username")
	password := flag.String("password", "password", "MQTT password")
	mode := flag.String("mode", "continuous", "run mode: single, spike, continuous")
	flag.Parse()

	opts := paho.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID(fmt.Sprintf("air-monitor-sim-%d", time.Now().Unix()))
	opts.SetUsername(*username)
	opts.SetPassword(*password)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		fmt.Printf("connection lost: %v\n", err)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		fmt.Printf("failed to connect to MQTT broker: %v\n", token.Error())
		os.Exit(1)
	}
	fmt.Printf("connected to MQTT broker: %s\n", *broker)

	switch *mode {
	case "single":
		publish(client, "devices/airnode/sim-001", normalSample("sim-001", 0))
		client.Disconnect(250)
	case "spike":
		publishSpike(client)
	case "continuous":
		publishContinuousData(client)
	default:
		fmt.Println("unknown mode, use single, spike or continuous")
		os.Exit(1)
	}
}

// normalSample drifts slowly around indoor background levels
func normalSample(device string, step int) AirSample {
	drift := math.Sin(float64(step) / 10)
	return AirSample{
		CO2:       round1(550 + 120*drift + rand.Float64()*30),
		CO:        round1(0.8 + 0.5*drift + rand.Float64()*0.2),
		Dust:      round1(35 + 15*drift + rand.Float64()*5),
		Device:    device,
		Timestamp: time.Now().Unix(),
	}
}

// publishSpike sends a CO2 excursion followed by recovery, which should
// switch the fan on at once and off only after the hysteresis window
func publishSpike(client paho.Client) {
	topic := "devices/airnode/sim-spike"
	levels := []float64{600, 850, 1250, 1400, 1100, 800, 600, 550, 500}

	for _, co2 := range levels {
		s := normalSample("sim-spike", 0)
		s.CO2 = co2
		publish(client, topic, s)
		time.Sleep(5 * time.Second)
	}

	client.Disconnect(250)
}

func publishContinuousData(client paho.Client) {
	devices := []DeviceConfig{
		{ID: "sim-001", Type: "airnode", Interval: 5 * time.Second},
		{ID: "sim-002", Type: "airnode", Interval: 8 * time.Second},
		{ID: "vendor-001", Type: "vendor", Interval: 6 * time.Second},
	}

	for _, device := range devices {
		go func(dev DeviceConfig) {
			for step := 0; ; step++ {
				publishDeviceData(client, dev, step)
				time.Sleep(dev.Interval)
			}
		}(device)
		fmt.Printf("device %s reports every %v\n", device.ID, device.Interval)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("disconnecting...")
	client.Disconnect(250)
}

func publishDeviceData(client paho.Client, device DeviceConfig, step int) {
	topic := fmt.Sprintf("devices/%s/%s", device.Type, device.ID)
	s := normalSample(device.ID, step)

	if device.Type != "vendor" {
		publish(client, topic, s)
		return
	}

	var v VendorSample
	v.Readings.CO2 = s.CO2
	v.Readings.CO = s.CO * 1000
	v.Readings.Dust = s.Dust / 1000
	v.TimestampMS = time.Now().UnixMilli()
	publish(client, topic, v)
}

func publish(client paho.Client, topic string, payload interface{}) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		fmt.Printf("failed to encode payload: %v\n", err)
		return
	}

	token := client.Publish(topic, 0, false, jsonData)
	token.Wait()

	if token.Error() != nil {
		fmt.Printf("failed to publish: %v\n", token.Error())
		return
	}
	fmt.Printf("[%s] %s: %s\n", time.Now().Format("15:04:05"), topic, string(jsonData))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
