package main

import (
	"fmt"
	"log"

	"github.com/trailpass/trek-booking-backend/internal/utils"
)

func main() {
	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator for TrailPass")
	fmt.Println("===========================================")
	fmt.Println()

	secret, err := utils.RandomToken(32)
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("Add this to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secret)
	fmt.Println()
	fmt.Println("RAZORPAY_KEY_SECRET comes from the Razorpay dashboard and is not generated here.")
	fmt.Println("===========================================")
}
