package util

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"time"

	"github.com/autom8ter/odm/errors"
	"github.com/ghodss/yaml"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"gopkg.in/mgo.v2/bson"
)

var validate = validator.New()

// ValidateStruct validates the struct's `validate` tags
func ValidateStruct(val any) error {
	return errors.Wrap(validate.Struct(val), errors.Validation, "")
}

// Decode decodes the input into the output based on json tags
func Decode(input any, output any) error {
	config := &mapstructure.DecoderConfig{
		WeaklyTypedInput:     true,
		Result:               output,
		TagName:              "json",
		IgnoreUntaggedFields: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// JSONString returns a json string of the input
func JSONString(input any) string {
	bits, _ := json.Marshal(input)
	return string(bits)
}

// EncodeIndexValue encodes a value so that equal values produce equal keys and numbers sort in order
func EncodeIndexValue(value any) []byte {
	if value == nil {
		return []byte("")
	}
	switch value := value.(type) {
	case bool:
		return EncodeIndexValue(cast.ToString(value))
	case string:
		return []byte(value)
	case bson.ObjectId:
		return []byte(value.Hex())
	case int, int64, int32, int16, int8, uint, uint64, uint32, uint16, uint8, float64, float32:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, sortableFloat(cast.ToFloat64(value)))
		return buf
	case time.Time:
		return EncodeIndexValue(value.UnixNano())
	case time.Duration:
		return EncodeIndexValue(int64(value))
	default:
		return EncodeIndexValue(JSONString(value))
	}
}

// sortableFloat flips the bits of a float so that byte order matches numeric order
func sortableFloat(f float64) uint64 {
	bits := math.Float64bits(f)
	if f < 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

// YAMLToJSON converts yaml to json. JSON input is returned unchanged.
func YAMLToJSON(yamlContent []byte) ([]byte, error) {
	if isJSON(string(yamlContent)) {
		return yamlContent, nil
	}
	return yaml.YAMLToJSON(yamlContent)
}

// JSONToYAML converts json to yaml
func JSONToYAML(jsonContent []byte) ([]byte, error) {
	return yaml.JSONToYAML(jsonContent)
}

func isJSON(str string) bool {
	var js json.RawMessage
	return json.Unmarshal([]byte(str), &js) == nil
}

// RemoveElement removes the element at index from the slice
func RemoveElement[T any](index int, results []T) []T {
	return append(results[:index], results[index+1:]...)
}
