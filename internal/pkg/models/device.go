package models

import (
	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/infrastructure/repositories/documents"
)

//Provenance names the store a federated entity was read from
type Provenance string

//DeviceType is the operator facing category of a device
type DeviceType string

const (
	DeviceTypeHumidity    DeviceType = "Humedad"
	DeviceTypeFlow        DeviceType = "Flow"
	DeviceTypeTemperature DeviceType = "Temperatura"
)

//DeviceTypes lists the accepted device categories
var DeviceTypes = []DeviceType{DeviceTypeHumidity, DeviceTypeFlow, DeviceTypeTemperature}

//ParseDeviceType accepts both the stored names and their English equivalents
func ParseDeviceType(s string) (DeviceType, bool) {
	switch s {
	case "Humedad", "Humidity":
		return DeviceTypeHumidity, true
	case "Flow":
		return DeviceTypeFlow, true
	case "Temperatura", "Temperature":
		return DeviceTypeTemperature, true
	}
	return "", false
}

//Device is a gateway or box registered in one of the federated stores
type Device struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Type       DeviceType    `json:"type"`
	Location   string        `json:"location"`
	Provenance Provenance    `json:"origin"`
	Ref        documents.Ref `json:"-"`
}

const (
	fieldName     = "Name"
	fieldNombre   = "Nombre"
	fieldType     = "Type"
	fieldLocation = "Location"
)

//DeviceFromDocument maps a stored device and tags it with the store it came from.
//Older documents carry the display name as Nombre instead of Name.
func DeviceFromDocument(doc documents.Document, provenance Provenance) Device {
	name := doc.Text(fieldName)
	if name == "" {
		name = doc.Text(fieldNombre)
	}

	return Device{
		ID:         doc.Ref.ID,
		Name:       name,
		Type:       DeviceType(doc.Text(fieldType)),
		Location:   doc.Text(fieldLocation),
		Provenance: provenance,
		Ref:        doc.Ref,
	}
}

//Fields returns the stored representation of the device
func (d Device) Fields() documents.Fields {
	return documents.Fields{
		fieldName:     d.Name,
		fieldType:     string(d.Type),
		fieldLocation: d.Location,
	}
}

//DeviceNameField is the field device display names are unique on
const DeviceNameField = fieldName
