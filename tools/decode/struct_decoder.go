package decode

import (
	"encoding/json"
	"reflect"
	"strconv"

	"PPRealtime/tools/errs"

	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Options 用于定制 Decode 行为。
type Options struct {
	// 宽松解码（默认 true）："123" -> int、1.0 -> int64 等
	WeaklyTypedInput bool
	// 未知字段报错（默认 false）
	ErrorUnused bool
}

func DefaultOptions() Options {
	return Options{WeaklyTypedInput: true}
}

// ParseJSON 把任意 JSON 对象解析成 *structpb.Struct
func ParseJSON(data []byte) (*structpb.Struct, error) {
	st := &structpb.Struct{}
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(data, st); err != nil {
		return nil, errs.ErrInvalidRequest.WrapMsg("frame is not a json object", "err", err.Error())
	}
	return st, nil
}

// DecodeStruct 将 *structpb.Struct 解码到结构体 T，字段读取使用 `json` tag。
func DecodeStruct[T any](st *structpb.Struct, opts ...Options) (*T, error) {
	if st == nil {
		return nil, errs.ErrInvalidRequest.WrapMsg("struct is nil")
	}
	return DecodeMap[T](st.AsMap(), opts...)
}

// DecodeMap 同 DecodeStruct，输入是已经展开的 map
func DecodeMap[T any](m map[string]any, opts ...Options) (*T, error) {
	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		ErrorUnused:      cfg.ErrorUnused,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			floatToIntHook(),
			anyToRawMessageHook(),
			sliceAnyToSliceStringHook(),
			jsonRawStringToMapHook(),
		),
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "new decoder")
	}
	if err := dec.Decode(m); err != nil {
		return nil, errs.ErrInvalidRequest.WrapMsg("decode struct", "err", err.Error())
	}
	return &out, nil
}

// ReadString 读取 string 字段，缺失或类型不符返回空串
func ReadString(st *structpb.Struct, key string) string {
	if st == nil {
		return ""
	}
	v, ok := st.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// ReadInt64 兼容 number / 数字字符串
func ReadInt64(st *structpb.Struct, key string) (int64, error) {
	if st == nil {
		return 0, errs.ErrInvalidRequest.WrapMsg("struct is nil")
	}
	v, ok := st.GetFields()[key]
	if !ok || v == nil {
		return 0, errs.ErrInvalidRequest.WrapMsg("missing field", "field", key)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return int64(k.NumberValue), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(k.StringValue, 10, 64)
		if err != nil {
			return 0, errs.ErrInvalidRequest.WrapMsg("field not a number", "field", key)
		}
		return n, nil
	default:
		return 0, errs.ErrInvalidRequest.WrapMsg("field not a number", "field", key)
	}
}

// floatToIntHook：float64 -> int / int32 / int64
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int:
			return int(data.(float64)), nil
		case reflect.Int32:
			return int32(data.(float64)), nil
		case reflect.Int64:
			return int64(data.(float64)), nil
		}
		return data, nil
	}
}

var rawMessageType = reflect.TypeOf(json.RawMessage(nil))

// anyToRawMessageHook：任意值 -> json.RawMessage，透传 payload 用
func anyToRawMessageHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != rawMessageType {
			return data, nil
		}
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(b), nil
	}
}

// sliceAnyToSliceStringHook：[]any -> []string
func sliceAnyToSliceStringHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.Slice || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
			return data, nil
		}
		src, ok := data.([]any)
		if !ok {
			return data, nil
		}
		out := make([]string, 0, len(src))
		for _, it := range src {
			switch v := it.(type) {
			case string:
				out = append(out, v)
			default:
				b, _ := json.Marshal(v)
				out = append(out, string(b))
			}
		}
		return out, nil
	}
}

// jsonRawStringToMapHook：JSON 字符串 -> map[string]any（嵌套的字符串化 JSON）
func jsonRawStringToMapHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.String || to != reflect.Map {
			return data, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(data.(string)), &m); err == nil {
			return m, nil
		}
		return data, nil
	}
}
