package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ProductConfig describes one managed product process. Products run
// during normal operation and are stopped as a group when the device
// enters config mode.
type ProductConfig struct {
	ID      string `toml:"id" json:"id"`
	Name    string `toml:"name" json:"name"`
	Command string `toml:"command" json:"command"`
	Enabled bool   `toml:"enabled" json:"enabled"`

	// Run settings
	User    string `toml:"user,omitempty" json:"user,omitempty"`       // Run as this system user
	Dir     string `toml:"dir,omitempty" json:"dir,omitempty"`         // Working directory
	LogFile string `toml:"log_file,omitempty" json:"log_file,omitempty"` // Output capture path

	// Metadata
	CreatedAt time.Time `toml:"created_at" json:"created_at"`
	UpdatedAt time.Time `toml:"updated_at" json:"updated_at"`
}

// ProductsConfig represents the complete products configuration file
type ProductsConfig struct {
	Version  int                      `toml:"version" json:"version"`
	Products map[string]ProductConfig `toml:"products" json:"products"`
}

// ProductManager manages product configurations
type ProductManager struct {
	configPath string
	config     *ProductsConfig
}

// NewProductManager creates a new product manager
func NewProductManager(configPath string) *ProductManager {
	if configPath == "" {
		configPath = "products.toml"
	}

	return &ProductManager{
		configPath: configPath,
		config: &ProductsConfig{
			Version:  1,
			Products: make(map[string]ProductConfig),
		},
	}
}

// Load loads the products configuration from file
func (pm *ProductManager) Load() error {
	// Missing file means no products are configured yet
	if _, err := os.Stat(pm.configPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(pm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read products config: %w", err)
	}

	if err := toml.Unmarshal(data, pm.config); err != nil {
		return fmt.Errorf("failed to parse products config: %w", err)
	}

	if pm.config.Products == nil {
		pm.config.Products = make(map[string]ProductConfig)
	}

	if pm.config.Version == 0 {
		pm.config.Version = 1
	}

	return nil
}

// Save saves the products configuration to file
func (pm *ProductManager) Save() error {
	dir := filepath.Dir(pm.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(pm.config)
	if err != nil {
		return fmt.Errorf("failed to marshal products config: %w", err)
	}

	if err := os.WriteFile(pm.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write products config: %w", err)
	}

	return nil
}

// AddProduct adds a new product to the configuration
func (pm *ProductManager) AddProduct(product ProductConfig) error {
	if product.ID == "" {
		return fmt.Errorf("product ID cannot be empty")
	}

	if product.Name == "" {
		product.Name = product.ID
	}

	if product.Command == "" {
		return fmt.Errorf("product command cannot be empty")
	}

	now := time.Now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	// Set enabled by default
	if !product.Enabled {
		product.Enabled = true
	}

	pm.config.Products[product.ID] = product
	return pm.Save()
}

// UpdateProduct updates an existing product configuration
func (pm *ProductManager) UpdateProduct(id string, updates ProductConfig) error {
	existing, exists := pm.config.Products[id]
	if !exists {
		return fmt.Errorf("product %s not found", id)
	}

	// Preserve creation time and ID
	updates.ID = existing.ID
	updates.CreatedAt = existing.CreatedAt
	updates.UpdatedAt = time.Now()

	// Use existing values if not provided
	if updates.Name == "" {
		updates.Name = existing.Name
	}
	if updates.Command == "" {
		updates.Command = existing.Command
	}

	pm.config.Products[id] = updates
	return pm.Save()
}

// RemoveProduct removes a product from the configuration
func (pm *ProductManager) RemoveProduct(id string) error {
	if _, exists := pm.config.Products[id]; !exists {
		return fmt.Errorf("product %s not found", id)
	}

	delete(pm.config.Products, id)
	return pm.Save()
}

// GetProduct retrieves a product by ID
func (pm *ProductManager) GetProduct(id string) (ProductConfig, bool) {
	product, exists := pm.config.Products[id]
	return product, exists
}

// GetProducts returns all products
func (pm *ProductManager) GetProducts() map[string]ProductConfig {
	return pm.config.Products
}

// GetEnabledProducts returns only enabled products
func (pm *ProductManager) GetEnabledProducts() map[string]ProductConfig {
	enabled := make(map[string]ProductConfig)
	for id, product := range pm.config.Products {
		if product.Enabled {
			enabled[id] = product
		}
	}
	return enabled
}

// EnableProduct enables a product
func (pm *ProductManager) EnableProduct(id string) error {
	product, exists := pm.config.Products[id]
	if !exists {
		return fmt.Errorf("product %s not found", id)
	}

	product.Enabled = true
	product.UpdatedAt = time.Now()
	pm.config.Products[id] = product
	return pm.Save()
}

// DisableProduct disables a product
func (pm *ProductManager) DisableProduct(id string) error {
	product, exists := pm.config.Products[id]
	if !exists {
		return fmt.Errorf("product %s not found", id)
	}

	product.Enabled = false
	product.UpdatedAt = time.Now()
	pm.config.Products[id] = product
	return pm.Save()
}
