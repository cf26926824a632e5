// defaults.go: default configuration values seeded into viper.
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig seeds viper with the default configuration. Values in
// the config file or environment override these.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "classwatch")
	viper.SetDefault("main.logfile", "")

	// Backend collaborator
	viper.SetDefault("backend.baseurl", "http://localhost:8000/api")
	viper.SetDefault("backend.timeout", 5*time.Second)
	viper.SetDefault("backend.modecachettl", 2*time.Second)
	viper.SetDefault("backend.schedulecachettl", 30*time.Second)
	viper.SetDefault("backend.rosterreload", 5*time.Minute)

	// Face match index
	viper.SetDefault("matcher.remoteurl", "")
	viper.SetDefault("matcher.namespace", "students")
	viper.SetDefault("matcher.timeout", 3*time.Second)
	viper.SetDefault("matcher.threshold", 0.45)

	// Oracle adapters
	viper.SetDefault("vision.facecascadepath", "models/haarcascade_frontalface_default.xml")
	viper.SetDefault("vision.embedder.url", "http://localhost:5005/embed")
	viper.SetDefault("vision.embedder.timeout", 5*time.Second)
	viper.SetDefault("vision.embedder.dimension", 512)
	viper.SetDefault("vision.detector.modelpath", "models/frozen_inference_graph.pb")
	viper.SetDefault("vision.detector.configpath", "models/ssd_mobilenet_v1_coco.pbtxt")
	viper.SetDefault("vision.detector.threshold", 0.5)

	// Phone candidate validation
	viper.SetDefault("phonefilter.minarearatio", 0.002)
	viper.SetDefault("phonefilter.maxarearatio", 0.25)
	viper.SetDefault("phonefilter.minaspect", 0.3)
	viper.SetDefault("phonefilter.maxaspect", 3.5)
	viper.SetDefault("phonefilter.minrectangularity", 0.60)
	viper.SetDefault("phonefilter.minemissiveratio", 1.08)
	viper.SetDefault("phonefilter.staticrejectafter", 5*time.Second)
	viper.SetDefault("phonefilter.staticmovementpx", 8.0)
	viper.SetDefault("phonefilter.highconfidence", 0.75)
	viper.SetDefault("phonefilter.minscore", 2)

	// Identity track state machine
	viper.SetDefault("tracker.enabled", true)
	viper.SetDefault("tracker.iouthreshold", 0.3)
	viper.SetDefault("tracker.consecutiven", 3)
	viper.SetDefault("tracker.minvisible", 2*time.Second)
	viper.SetDefault("tracker.livenesswindow", 10*time.Second)
	viper.SetDefault("tracker.livenessminpx", 15.0)
	viper.SetDefault("tracker.staletimeout", 5*time.Second)
	viper.SetDefault("tracker.maxtrackhistory", 64)

	// Decision engine
	viper.SetDefault("engine.detectioninterval", 2*time.Second)
	viper.SetDefault("engine.markcooldown", 30*time.Second)
	viper.SetDefault("engine.lateafter", 5*time.Minute)
	viper.SetDefault("engine.examcheckinterval", 500*time.Millisecond)
	viper.SetDefault("engine.examconsecutive", 1)
	viper.SetDefault("engine.alertcooldown", 45*time.Second)
	viper.SetDefault("engine.surethreshold", 0.8)
	viper.SetDefault("engine.maybethreshold", 0.5)
	viper.SetDefault("engine.testmodealwayson", false)

	// Notifications
	viper.SetDefault("notification.urls", []string{})
	viper.SetDefault("notification.timeout", 10*time.Second)

	// MQTT publishing
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientid", "classwatch")
	viper.SetDefault("mqtt.topic", "classwatch/decisions")

	// Local decision journal
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "classwatch.db")

	// Status server
	viper.SetDefault("http.enabled", true)
	viper.SetDefault("http.address", ":8090")
}
