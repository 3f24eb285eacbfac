package main

import (
	"context"
	"fmt"
	"log"
	"time"

	gosdk "github.com/Meesho/BharatMLStack/feature-server/sdks/go/pkg"
)

func main() {
	client, err := gosdk.NewClientV1(&gosdk.Config{
		Host:        "localhost", // change to your feature-server host
		Port:        "8089",      // change to your feature-server port
		DeadLine:    500 * time.Millisecond,
		PlainText:   true,
		CallerId:    "test-caller", // change to your caller id
		CallerToken: "test",        // change to your caller token
		BatchSize:   50,
		Retries:     2,
	})
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}

	retrieveFeaturesExample(client)
	retrieveFeatureServiceExample(client)
}

func retrieveFeaturesExample(client *gosdk.ClientV1) {
	res, err := client.GetOnlineFeatures(context.Background(), &gosdk.Query{
		Features: []string{"driver_hourly_stats:conv_rate", "transformed_conv_rate:conv_rate_plus_val1"},
		Entities: map[string][]any{
			"driver_id":  {1001, 1002, 1003},
			"val_to_add": {1, 2, 3},
		},
	})
	if err != nil {
		log.Printf("failed to retrieve features: %v", err)
		return
	}
	printResult(res)
}

func retrieveFeatureServiceExample(client *gosdk.ClientV1) {
	res, err := client.GetOnlineFeatures(context.Background(), &gosdk.Query{
		FeatureService:   "driver_activity",
		Entities:         map[string][]any{"driver_id": {1001, 1002}},
		FullFeatureNames: true,
	})
	if err != nil {
		log.Printf("failed to retrieve feature service: %v", err)
		return
	}
	printResult(res)
}

func printResult(res *gosdk.Result) {
	for i, name := range res.Metadata.FeatureNames {
		fmt.Printf("%s values=%v statuses=%v\n", name, res.Results[i].Values, res.Results[i].Statuses)
	}
}
